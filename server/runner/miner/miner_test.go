package miner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-hq/conductor/server/service/policy"
	"github.com/conductor-hq/conductor/store"
	storetest "github.com/conductor-hq/conductor/store/test"
)

func newTestRunner(ctx context.Context, t *testing.T) (*Runner, *store.Store) {
	st := storetest.NewTestingStore(ctx, t)
	return NewRunner(st, policy.DefaultGates(), DefaultCriteria(), time.Hour, nil), st
}

// seedPattern writes n decided episodes of the same shape, spread evenly
// over spanDays.
func seedPattern(ctx context.Context, t *testing.T, st *store.Store, n, spanDays int, success bool) {
	start := time.Now().AddDate(0, 0, -spanDays).UnixMilli()
	step := int64(spanDays) * dayMs / int64(n)

	for i := 0; i < n; i++ {
		ts := start + int64(i)*step
		episode, err := st.CreateEpisode(ctx, &store.Episode{
			ID:             fmt.Sprintf("ep-%s-%d", t.Name(), i),
			CreatedTs:      ts,
			UpdatedTs:      ts,
			ObservationIDs: []string{fmt.Sprintf("obs-%d", i)},
			Intent:         "email_interaction",
			Context: store.EpisodeContext{
				Apps: []string{"Google Chrome"},
				URLs: []string{"https://mail.google.com/mail/u/0"},
			},
			Status: store.EpisodeClosed,
		})
		require.NoError(t, err)

		proposal, err := st.CreateProposal(ctx, &store.Proposal{
			ID:         fmt.Sprintf("pr-%s-%d", t.Name(), i),
			CreatedTs:  ts,
			EpisodeID:  episode.ID,
			ActionType: store.ActionEmailDraft,
			Content:    "Thanks, replying shortly.",
			Confidence: 80,
			Risk:       store.RiskLow,
			Status:     store.ProposalExecuted,
			Metadata:   map[string]any{},
		})
		require.NoError(t, err)

		ok := success
		_, err = st.CreateDecision(ctx, &store.Decision{
			ID:               fmt.Sprintf("dc-%s-%d", t.Name(), i),
			CreatedTs:        ts,
			ProposalID:       proposal.ID,
			Verdict:          store.DecisionApproved,
			ExecutionSuccess: &ok,
		})
		require.NoError(t, err)
	}
}

func TestMinesRecurringPatternIntoPlaybook(t *testing.T) {
	ctx := context.Background()
	runner, st := newTestRunner(ctx, t)
	seedPattern(ctx, t, st, 6, 5, true)

	runner.RunOnce(ctx)

	playbooks, err := st.ListPlaybooks(ctx, &store.FindPlaybook{})
	require.NoError(t, err)
	require.Len(t, playbooks, 1)

	mined := playbooks[0]
	assert.Equal(t, store.ModeSuggest, mined.Mode)
	assert.Equal(t, int32(1), mined.Version)
	assert.Equal(t, store.PlaybookStats{}, mined.Stats)
	assert.Equal(t, 10, mined.DailyCap)
	assert.Contains(t, mined.Trigger.Signals, "email_interaction")
	assert.Contains(t, mined.Trigger.URLPattern, `mail\.google\.com`)
	require.Len(t, mined.Actions, 1)
	assert.Equal(t, store.ActionEmailDraft, mined.Actions[0].Type)
}

func TestMiningIsIdempotentAcrossSweeps(t *testing.T) {
	ctx := context.Background()
	runner, st := newTestRunner(ctx, t)
	seedPattern(ctx, t, st, 6, 5, true)

	runner.RunOnce(ctx)
	runner.RunOnce(ctx)

	playbooks, err := st.ListPlaybooks(ctx, &store.FindPlaybook{})
	require.NoError(t, err)
	assert.Len(t, playbooks, 1, "re-running the sweep never duplicates a playbook")
}

func TestTooFewOccurrencesNotMined(t *testing.T) {
	ctx := context.Background()
	runner, st := newTestRunner(ctx, t)
	seedPattern(ctx, t, st, 4, 5, true)

	runner.RunOnce(ctx)

	playbooks, err := st.ListPlaybooks(ctx, &store.FindPlaybook{})
	require.NoError(t, err)
	assert.Empty(t, playbooks)
}

func TestTooShortSpanNotMined(t *testing.T) {
	ctx := context.Background()
	runner, st := newTestRunner(ctx, t)
	seedPattern(ctx, t, st, 6, 1, true)

	runner.RunOnce(ctx)

	playbooks, err := st.ListPlaybooks(ctx, &store.FindPlaybook{})
	require.NoError(t, err)
	assert.Empty(t, playbooks)
}

func TestLowSuccessRateNotMined(t *testing.T) {
	ctx := context.Background()
	runner, st := newTestRunner(ctx, t)
	seedPattern(ctx, t, st, 6, 5, false)

	runner.RunOnce(ctx)

	playbooks, err := st.ListPlaybooks(ctx, &store.FindPlaybook{})
	require.NoError(t, err)
	assert.Empty(t, playbooks)
}

func createPlaybookWithStats(ctx context.Context, t *testing.T, st *store.Store, mode store.AutomationMode, stats store.PlaybookStats) *store.Playbook {
	now := time.Now().UnixMilli()
	playbook, err := st.CreatePlaybook(ctx, &store.Playbook{
		ID:        "pb-" + t.Name(),
		Version:   1,
		CreatedTs: now,
		UpdatedTs: now,
		Name:      "Existing: " + t.Name(),
		Trigger:   store.PlaybookTrigger{AppPattern: "Mail"},
		Actions:   []store.PlaybookAction{{Type: store.ActionEmailDraft}},
		Mode:      mode,
		DailyCap:  10,
		Stats:     stats,
	})
	require.NoError(t, err)
	return playbook
}

func TestAutoPromotesSuggestToShadow(t *testing.T) {
	ctx := context.Background()
	runner, st := newTestRunner(ctx, t)
	playbook := createPlaybookWithStats(ctx, t, st, store.ModeSuggest, store.PlaybookStats{
		Approvals:       5,
		AvgEditDistance: 0.10,
	})

	runner.RunOnce(ctx)

	updated, err := st.GetPlaybook(ctx, &store.FindPlaybook{ID: &playbook.ID})
	require.NoError(t, err)
	assert.Equal(t, store.ModeShadow, updated.Mode)
}

func TestAutopilotEdgeIsNotAutoApplied(t *testing.T) {
	ctx := context.Background()
	runner, st := newTestRunner(ctx, t)
	playbook := createPlaybookWithStats(ctx, t, st, store.ModeApprove, store.PlaybookStats{
		DryRunCount:          5,
		TotalExecutions:      10,
		SuccessfulExecutions: 10,
	})

	runner.RunOnce(ctx)

	updated, err := st.GetPlaybook(ctx, &store.FindPlaybook{ID: &playbook.ID})
	require.NoError(t, err)
	assert.Equal(t, store.ModeApprove, updated.Mode, "autopilot requires the explicit opt-in command")
}

func TestDemotionAppliedAndWindowReset(t *testing.T) {
	ctx := context.Background()
	runner, st := newTestRunner(ctx, t)
	playbook := createPlaybookWithStats(ctx, t, st, store.ModeApprove, store.PlaybookStats{
		ConsecutiveDeclines: 3,
	})

	runner.RunOnce(ctx)

	updated, err := st.GetPlaybook(ctx, &store.FindPlaybook{ID: &playbook.ID})
	require.NoError(t, err)
	assert.Equal(t, store.ModeShadow, updated.Mode)
	assert.Equal(t, 0, updated.Stats.ConsecutiveDeclines)

	// The second sweep sees a clean window and does not demote again.
	runner.RunOnce(ctx)
	updated, err = st.GetPlaybook(ctx, &store.FindPlaybook{ID: &playbook.ID})
	require.NoError(t, err)
	assert.Equal(t, store.ModeShadow, updated.Mode)
}

func TestSortedHosts(t *testing.T) {
	hosts := sortedHosts([]string{
		"https://mail.google.com/mail/u/0",
		"https://calendar.google.com/r",
		"https://mail.google.com/mail/u/1",
		"not a url",
	})
	assert.Equal(t, []string{"calendar.google.com", "mail.google.com"}, hosts)
}
