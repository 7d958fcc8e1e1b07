// Package miner scans decision history for recurring episode patterns and
// turns the reliable ones into playbooks. It also drives the automation
// maturity transitions that do not require an explicit user command.
package miner

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/conductor-hq/conductor/internal/util"
	"github.com/conductor-hq/conductor/server/service/policy"
	"github.com/conductor-hq/conductor/store"
)

const dayMs = 24 * 60 * 60 * 1000

// Criteria are the suggestion thresholds a candidate pattern must clear
// before it becomes a playbook.
type Criteria struct {
	MinOccurrences  int
	MaxEditDistance float64
	MinSpanDays     int
	MinSuccessRate  float64
	DefaultDailyCap int
}

// DefaultCriteria returns the default suggestion thresholds.
func DefaultCriteria() Criteria {
	return Criteria{
		MinOccurrences:  5,
		MaxEditDistance: 0.15,
		MinSpanDays:     3,
		MinSuccessRate:  0.90,
		DefaultDailyCap: 10,
	}
}

// Runner is the background playbook miner.
type Runner struct {
	store    *store.Store
	gates    policy.Gates
	criteria Criteria
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a playbook miner.
func NewRunner(st *store.Store, gates policy.Gates, criteria Criteria, interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    st,
		gates:    gates,
		criteria: criteria,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the background task.
func (r *Runner) Run(ctx context.Context) {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-ctx.Done():
			r.logger.Info("playbook miner stopped")
			return
		}
	}
}

// RunOnce performs a single mining sweep (for tests and manual trigger).
func (r *Runner) RunOnce(ctx context.Context) {
	r.sweep(ctx)
}

func (r *Runner) sweep(ctx context.Context) {
	if err := r.minePatterns(ctx); err != nil {
		r.logger.Error("pattern mining failed", "error", err)
	}
	if err := r.applyMaturityTransitions(ctx); err != nil {
		r.logger.Error("maturity sweep failed", "error", err)
	}
}

// candidate accumulates the evidence for one recurring pattern.
type candidate struct {
	intent    string
	apps      []string
	hosts     []string
	firstTs   int64
	lastTs    int64
	episodes  int
	decisions int
	successes int
	editSum   float64
	edits     int
	action    store.ActionType
}

// minePatterns groups decided episodes by (intent, app set, url hosts) and
// creates a suggest-mode playbook for every group that clears the criteria.
func (r *Runner) minePatterns(ctx context.Context) error {
	episodes, err := r.store.ListEpisodes(ctx, &store.FindEpisode{})
	if err != nil {
		return err
	}

	existing, err := r.store.ListPlaybooks(ctx, &store.FindPlaybook{})
	if err != nil {
		return err
	}
	knownNames := map[string]bool{}
	for _, playbook := range existing {
		knownNames[playbook.Name] = true
	}

	candidates := map[string]*candidate{}
	for _, episode := range episodes {
		apps := sortedCopy(episode.Context.Apps)
		hosts := sortedHosts(episode.Context.URLs)
		key := episode.Intent + "|" + strings.Join(apps, ",") + "|" + strings.Join(hosts, ",")

		c, ok := candidates[key]
		if !ok {
			c = &candidate{intent: episode.Intent, apps: apps, hosts: hosts, firstTs: episode.CreatedTs, lastTs: episode.CreatedTs}
			candidates[key] = c
		}
		c.episodes++
		if episode.CreatedTs < c.firstTs {
			c.firstTs = episode.CreatedTs
		}
		if episode.CreatedTs > c.lastTs {
			c.lastTs = episode.CreatedTs
		}

		if err := r.accumulateDecisions(ctx, episode.ID, c); err != nil {
			return err
		}
	}

	for _, c := range candidates {
		if !r.qualifies(c) {
			continue
		}
		name := playbookName(c)
		if knownNames[name] {
			continue
		}
		playbook := r.buildPlaybook(c, name)
		if _, err := r.store.CreatePlaybook(ctx, playbook); err != nil {
			return err
		}
		r.logger.Info("mined new playbook",
			"playbook_id", playbook.ID,
			"name", playbook.Name,
			"occurrences", c.episodes)
	}
	return nil
}

func (r *Runner) accumulateDecisions(ctx context.Context, episodeID string, c *candidate) error {
	proposals, err := r.store.ListProposals(ctx, &store.FindProposal{EpisodeID: &episodeID})
	if err != nil {
		return err
	}
	for _, proposal := range proposals {
		if c.action == "" {
			c.action = proposal.ActionType
		}
		decisions, err := r.store.ListDecisions(ctx, &store.FindDecision{ProposalID: &proposal.ID})
		if err != nil {
			return err
		}
		for _, decision := range decisions {
			c.decisions++
			switch decision.Verdict {
			case store.DecisionApproved, store.DecisionEdited:
				if decision.ExecutionSuccess == nil || *decision.ExecutionSuccess {
					c.successes++
				}
				c.edits++
				if decision.EditDistance != nil {
					c.editSum += *decision.EditDistance
				}
			}
		}
	}
	return nil
}

func (r *Runner) qualifies(c *candidate) bool {
	if c.episodes < r.criteria.MinOccurrences || c.decisions == 0 {
		return false
	}
	if c.lastTs-c.firstTs < int64(r.criteria.MinSpanDays)*dayMs {
		return false
	}
	if c.edits > 0 && c.editSum/float64(c.edits) > r.criteria.MaxEditDistance {
		return false
	}
	if float64(c.successes)/float64(c.decisions) < r.criteria.MinSuccessRate {
		return false
	}
	return c.action != ""
}

func (r *Runner) buildPlaybook(c *candidate, name string) *store.Playbook {
	now := time.Now().UnixMilli()
	return &store.Playbook{
		ID:        util.GenUID(),
		Version:   1,
		CreatedTs: now,
		UpdatedTs: now,
		Name:      name,
		Description: fmt.Sprintf("Mined from %d recurring %s episodes over %d days",
			c.episodes, c.intent, (c.lastTs-c.firstTs)/dayMs),
		Trigger: store.PlaybookTrigger{
			AppPattern: alternation(c.apps),
			URLPattern: alternation(c.hosts),
			Signals:    []string{c.intent},
		},
		Actions:  []store.PlaybookAction{{Type: c.action}},
		Mode:     store.ModeSuggest,
		DailyCap: r.criteria.DefaultDailyCap,
		Stats:    store.PlaybookStats{},
	}
}

// applyMaturityTransitions demotes playbooks whose demotion trigger fires
// and auto-promotes through the gates that need no user consent. The
// approve -> autopilot edge is only flagged; it requires the explicit
// opt-in command.
func (r *Runner) applyMaturityTransitions(ctx context.Context) error {
	playbooks, err := r.store.ListPlaybooks(ctx, &store.FindPlaybook{})
	if err != nil {
		return err
	}

	for _, playbook := range playbooks {
		if fired, reason := r.gates.DemotionTrigger(playbook); fired {
			demoted := policy.DemotedMode(playbook.Mode)
			// Restart the measurement window so one bad stretch demotes
			// once, not on every sweep.
			stats := playbook.Stats
			stats.ConsecutiveDeclines = 0
			stats.AvgEditDistance = 0
			stats.TotalExecutions = 0
			stats.SuccessfulExecutions = 0
			if err := r.store.UpdatePlaybook(ctx, &store.UpdatePlaybook{
				ID:        playbook.ID,
				UpdatedTs: time.Now().UnixMilli(),
				Mode:      &demoted,
				Stats:     &stats,
			}); err != nil {
				return err
			}
			r.logger.Warn("playbook demoted",
				"playbook_id", playbook.ID,
				"from", string(playbook.Mode),
				"to", string(demoted),
				"reason", reason)
			continue
		}

		next, ok := policy.NextMode(playbook.Mode)
		if !ok {
			continue
		}
		if pass, _ := r.gates.CanPromote(playbook, next); !pass {
			continue
		}
		if next == store.ModeAutopilot {
			r.logger.Info("playbook eligible for autopilot opt-in",
				"playbook_id", playbook.ID, "name", playbook.Name)
			continue
		}
		if err := r.store.UpdatePlaybook(ctx, &store.UpdatePlaybook{
			ID:        playbook.ID,
			UpdatedTs: time.Now().UnixMilli(),
			Mode:      &next,
		}); err != nil {
			return err
		}
		r.logger.Info("playbook promoted",
			"playbook_id", playbook.ID,
			"from", string(playbook.Mode),
			"to", string(next))
	}
	return nil
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func sortedHosts(urls []string) []string {
	seen := map[string]bool{}
	var hosts []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Host)
		if !seen[host] {
			seen[host] = true
			hosts = append(hosts, host)
		}
	}
	sort.Strings(hosts)
	return hosts
}

func alternation(values []string) string {
	if len(values) == 0 {
		return ""
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = regexp.QuoteMeta(v)
	}
	return strings.Join(quoted, "|")
}

func playbookName(c *candidate) string {
	scope := strings.Join(c.apps, ", ")
	if len(c.hosts) > 0 {
		scope = strings.Join(c.hosts, ", ")
	}
	return fmt.Sprintf("%s: %s", c.intent, scope)
}
