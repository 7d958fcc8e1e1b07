// Package pipeline wires the stages together: sensor events are ingested
// into a session buffer, the segmenter closes episodes, each closed episode
// is drafted and evaluated, and the resulting proposals are persisted and
// surfaced through the command methods.
package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/conductor-hq/conductor/internal/util"
	"github.com/conductor-hq/conductor/server/internal/observability"
	"github.com/conductor-hq/conductor/server/service/drafter"
	"github.com/conductor-hq/conductor/server/service/execution"
	"github.com/conductor-hq/conductor/server/service/policy"
	"github.com/conductor-hq/conductor/server/service/segmenter"
	"github.com/conductor-hq/conductor/store"
)

const (
	observationChanSize = 256
	episodeChanSize     = 32
)

// metadataPlaybookID is the proposal metadata key linking a proposal to the
// playbook that matched its episode.
const metadataPlaybookID = "playbook_id"

// Service is the assembled decision pipeline plus its command surface.
type Service struct {
	store     *store.Store
	segmenter *segmenter.Segmenter
	drafter   *drafter.Drafter
	policy    *policy.Engine
	runner    *execution.Runner
	logger    *slog.Logger

	session *segmenter.SessionContext

	observations chan *store.Observation
	episodes     chan *store.Episode

	// processSem serializes episode processing so no two proposals derive
	// from overlapping buffer state.
	processSem *semaphore.Weighted

	proposalLocks *keyedMutex

	observing atomic.Bool

	subMu       sync.Mutex
	subscribers []chan int
}

// Options carries the pipeline's collaborators.
type Options struct {
	Store     *store.Store
	Segmenter *segmenter.Segmenter
	Drafter   *drafter.Drafter
	Policy    *policy.Engine
	Runner    *execution.Runner
	Logger    *slog.Logger
}

// NewService assembles a pipeline service. Observation ingestion starts
// disabled until StartObservation is called.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         opts.Store,
		segmenter:     opts.Segmenter,
		drafter:       opts.Drafter,
		policy:        opts.Policy,
		runner:        opts.Runner,
		logger:        logger,
		session:       segmenter.NewSessionContext(),
		observations:  make(chan *store.Observation, observationChanSize),
		episodes:      make(chan *store.Episode, episodeChanSize),
		processSem:    semaphore.NewWeighted(1),
		proposalLocks: newKeyedMutex(),
	}
}

// Run drives the ingest and processing loops until the context is
// canceled.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.ingestLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.processLoop(ctx)
	}()
	wg.Wait()
}

// OnAppActivated records an application switch sensor event.
func (s *Service) OnAppActivated(bundleID, appName string) {
	s.Observe(&store.Observation{
		BundleID: bundleID,
		AppName:  appName,
		Kind:     store.ObservationAppActivated,
	})
}

// OnWindowChanged records a window focus or navigation sensor event.
func (s *Service) OnWindowChanged(windowTitle, windowID, url string) {
	kind := store.ObservationWindowFocused
	if url != "" {
		kind = store.ObservationURLChanged
	}
	s.Observe(&store.Observation{
		WindowTitle: windowTitle,
		WindowID:    windowID,
		URL:         url,
		Kind:        kind,
	})
}

// Observe queues one observation for ingestion. Events arriving while
// observation is stopped or private mode is active are dropped, never
// buffered for later.
func (s *Service) Observe(obs *store.Observation) {
	if !s.observing.Load() || s.session.Private() {
		return
	}
	if obs.ID == "" {
		obs.ID = util.GenSortableID()
	}
	if obs.Timestamp == 0 {
		obs.Timestamp = time.Now().UnixMilli()
	}
	if obs.Confidence == 0 {
		obs.Confidence = 1
	}
	obs.SessionID = s.session.SessionID()

	select {
	case s.observations <- obs:
	default:
		s.logger.Warn("observation channel full, dropping event",
			slog.String(observability.LogFieldSessionID, obs.SessionID))
	}
}

func (s *Service) ingestLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs := <-s.observations:
			s.ingest(ctx, obs)
		}
	}
}

// ingest persists the observation, closes the current episode when a
// boundary is detected, and appends the observation to the session buffer.
func (s *Service) ingest(ctx context.Context, obs *store.Observation) {
	if s.session.Private() {
		return
	}

	if _, err := s.store.CreateObservation(ctx, obs); err != nil {
		s.logger.Error("failed to persist observation",
			slog.String(observability.LogFieldSessionID, obs.SessionID),
			slog.String("error", err.Error()))
		return
	}

	if s.segmenter.ShouldClose(s.session.Last(), obs) {
		s.flushBuffer(ctx)
	}
	s.session.Append(obs)
}

// flushBuffer drains the session buffer into a closed episode and hands it
// to the processing stage.
func (s *Service) flushBuffer(ctx context.Context) {
	buffer := s.session.Drain()
	episode := s.segmenter.Segment(buffer)
	if episode == nil {
		return
	}

	stage := observability.NewStageContext(s.logger, "segmenter", s.session.SessionID())
	if _, err := s.store.CreateEpisode(ctx, episode); err != nil {
		stage.Error("failed to persist episode", err,
			slog.String(observability.LogFieldEpisodeID, episode.ID))
		return
	}
	stage.Info("episode closed",
		slog.String(observability.LogFieldEpisodeID, episode.ID),
		slog.String("intent", episode.Intent),
		slog.Int("observations", len(episode.ObservationIDs)))

	select {
	case s.episodes <- episode:
	case <-ctx.Done():
	}
}

func (s *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case episode := <-s.episodes:
			if err := s.processSem.Acquire(ctx, 1); err != nil {
				return
			}
			s.processEpisode(ctx, episode)
			s.processSem.Release(1)
		}
	}
}

// processEpisode runs draft -> policy -> persist -> notify for one closed
// episode.
func (s *Service) processEpisode(ctx context.Context, episode *store.Episode) {
	stage := observability.NewStageContext(s.logger, "process", s.session.SessionID())

	proposal, err := s.drafter.Draft(ctx, episode)
	if err != nil {
		stage.Error("draft generation failed", err,
			slog.String(observability.LogFieldEpisodeID, episode.ID))
		return
	}
	if proposal == nil {
		stage.Debug("no template for intent, skipping episode",
			slog.String(observability.LogFieldEpisodeID, episode.ID),
			slog.String("intent", episode.Intent))
		return
	}

	evaluation := s.policy.Evaluate(proposal)
	proposal.Metadata["disposition"] = string(evaluation.Disposition)
	if len(evaluation.Warnings) > 0 {
		proposal.Metadata["warnings"] = evaluation.Warnings
	}

	playbook, err := s.matchPlaybook(ctx, episode)
	if err != nil {
		stage.Error("playbook lookup failed", err)
	}
	if playbook != nil {
		proposal.Metadata[metadataPlaybookID] = playbook.ID
	}

	// Auto-declined proposals are recorded for mining but never surfaced.
	if evaluation.Disposition == policy.DispositionAutoDecline {
		proposal.Status = store.ProposalDeclined
		if _, err := s.store.CreateProposal(ctx, proposal); err != nil {
			stage.Error("failed to persist auto-declined proposal", err)
		}
		return
	}

	if _, err := s.store.CreateProposal(ctx, proposal); err != nil {
		stage.Error("failed to persist proposal", err,
			slog.String(observability.LogFieldEpisodeID, episode.ID))
		return
	}
	stage.Info("proposal created",
		slog.String(observability.LogFieldProposalID, proposal.ID),
		slog.String("disposition", string(evaluation.Disposition)),
		slog.Int("confidence", proposal.Confidence))

	if playbook != nil {
		switch {
		case playbook.Mode == store.ModeShadow && evaluation.Disposition == policy.DispositionEligibleShadow:
			s.recordShadowRun(ctx, playbook)
		case evaluation.Disposition == policy.DispositionEligibleAutopilot:
			s.tryAutopilot(ctx, stage, playbook, proposal)
		}
	}

	s.notifyPendingCount(ctx)
}

// matchPlaybook returns the first playbook whose trigger matches the
// episode, preferring the most mature mode when several match.
func (s *Service) matchPlaybook(ctx context.Context, episode *store.Episode) (*store.Playbook, error) {
	playbooks, err := s.store.ListPlaybooks(ctx, &store.FindPlaybook{})
	if err != nil {
		return nil, err
	}

	var best *store.Playbook
	for _, playbook := range playbooks {
		if !triggerMatches(playbook.Trigger, episode) {
			continue
		}
		if best == nil || playbook.Mode.Rank() > best.Mode.Rank() {
			best = playbook
		}
	}
	return best, nil
}

func triggerMatches(trigger store.PlaybookTrigger, episode *store.Episode) bool {
	if len(trigger.Signals) > 0 && !containsFold(trigger.Signals, episode.Intent) {
		return false
	}
	if trigger.AppPattern != "" && !anyMatches(trigger.AppPattern, episode.Context.Apps) {
		return false
	}
	if trigger.URLPattern != "" && !anyMatches(trigger.URLPattern, episode.Context.URLs) {
		return false
	}
	return true
}

func anyMatches(pattern string, values []string) bool {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	for _, v := range values {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// recordShadowRun notes that a shadow-mode playbook would have acted here.
// Agreement is credited later, when the user approves the proposal.
func (s *Service) recordShadowRun(ctx context.Context, playbook *store.Playbook) {
	stats := playbook.Stats
	stats.ShadowRuns++
	if err := s.store.UpdatePlaybook(ctx, &store.UpdatePlaybook{
		ID:        playbook.ID,
		UpdatedTs: time.Now().UnixMilli(),
		Stats:     &stats,
	}); err != nil {
		s.logger.Error("failed to record shadow run",
			slog.String("playbook_id", playbook.ID), slog.String("error", err.Error()))
	}
}

// tryAutopilot executes the proposal unattended when the playbook's
// per-execution eligibility check passes; otherwise the proposal stays
// pending for approval.
func (s *Service) tryAutopilot(ctx context.Context, stage *observability.StageContext, playbook *store.Playbook, proposal *store.Proposal) {
	today := time.Now().UTC().Format("2006-01-02")
	eligible, reason := s.policy.AutopilotEligible(playbook, proposal, today)
	if !eligible {
		stage.Info("autopilot declined, falling back to approval",
			slog.String(observability.LogFieldProposalID, proposal.ID),
			slog.String("reason", reason))
		return
	}

	if _, err := s.approve(ctx, proposal.ID, "", true); err != nil {
		stage.Error("autopilot execution failed", err,
			slog.String(observability.LogFieldProposalID, proposal.ID))
		return
	}

	stats := playbook.Stats
	if stats.TodayDate != today {
		stats.TodayDate = today
		stats.TodayCount = 0
	}
	stats.TodayCount++
	if err := s.store.UpdatePlaybook(ctx, &store.UpdatePlaybook{
		ID:        playbook.ID,
		UpdatedTs: time.Now().UnixMilli(),
		Stats:     &stats,
	}); err != nil {
		stage.Error("failed to bump autopilot daily count", err,
			slog.String("playbook_id", playbook.ID))
	}
}

// notifyPendingCount pushes the current pending-proposal count to all
// subscribers. Slow subscribers miss intermediate counts rather than
// blocking the pipeline.
func (s *Service) notifyPendingCount(ctx context.Context) {
	count, err := s.store.CountPendingProposals(ctx)
	if err != nil {
		s.logger.Error("failed to count pending proposals", slog.String("error", err.Error()))
		return
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subscribers {
		select {
		case sub <- count:
		default:
		}
	}
}

// Subscribe returns a channel receiving the pending-proposal count after
// every mutation.
func (s *Service) Subscribe() <-chan int {
	ch := make(chan int, 8)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}
