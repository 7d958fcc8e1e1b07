package pipeline

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "github.com/conductor-hq/conductor/server/internal/errors"
	"github.com/conductor-hq/conductor/server/service/drafter"
	"github.com/conductor-hq/conductor/server/service/execution"
	"github.com/conductor-hq/conductor/server/service/policy"
	"github.com/conductor-hq/conductor/server/service/segmenter"
	"github.com/conductor-hq/conductor/store"
	storetest "github.com/conductor-hq/conductor/store/test"
)

func newTestService(ctx context.Context, t *testing.T, opts ...func(*Options)) (*Service, *store.Store) {
	st := storetest.NewTestingStore(ctx, t)

	registry := execution.NewRegistry()
	for _, actionType := range []store.ActionType{
		store.ActionEmailDraft, store.ActionCalendarEvent, store.ActionNotesPage, store.ActionGeneric,
	} {
		require.NoError(t, registry.Register(actionType, execution.NewLogCapability(nil)))
	}

	options := Options{
		Store:     st,
		Segmenter: segmenter.New(nil),
		Drafter:   drafter.New(),
		Policy:    policy.NewEngine(policy.DefaultThresholds(), policy.DefaultGates()),
		Runner:    execution.NewRunner(registry, nil),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return NewService(options), st
}

func gmailObservation(ts int64, payload string) *store.Observation {
	return &store.Observation{
		Timestamp:   ts,
		BundleID:    "com.google.Chrome",
		AppName:     "Google Chrome",
		WindowTitle: "Inbox - Gmail",
		URL:         "https://mail.google.com/mail/u/0",
		Kind:        store.ObservationURLChanged,
		Payload:     payload,
		Confidence:  1,
	}
}

func TestIngestToProposal(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(ctx, t)

	svc.StartObservation()
	base := time.Now().UnixMilli()
	for i := 0; i < 4; i++ {
		obs := gmailObservation(base+int64(i)*1000, "Re: quarterly report, thanks for the draft")
		svc.Observe(obs)
		svc.ingest(ctx, <-svc.observations)
	}
	svc.StopObservation(ctx)

	var episode *store.Episode
	select {
	case episode = <-svc.episodes:
	default:
		t.Fatal("expected a closed episode on the channel")
	}
	assert.Equal(t, "email_interaction", episode.Intent)
	assert.Len(t, episode.ObservationIDs, 4)

	svc.processEpisode(ctx, episode)

	pending, err := svc.PendingProposals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.ActionEmailDraft, pending[0].ActionType)
	assert.Equal(t, episode.ID, pending[0].EpisodeID)

	stored, err := st.ListObservations(ctx, &store.FindObservation{})
	require.NoError(t, err)
	assert.Len(t, stored, 4, "observations are persisted before buffering")
}

func TestObserveDroppedWhenStoppedOrPrivate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(ctx, t)

	svc.Observe(gmailObservation(time.Now().UnixMilli(), ""))
	assert.Empty(t, svc.observations, "events before StartObservation are dropped")

	svc.StartObservation()
	svc.SetPrivateMode(true)
	svc.Observe(gmailObservation(time.Now().UnixMilli(), ""))
	assert.Empty(t, svc.observations, "events during private mode are dropped")
	assert.True(t, svc.PrivateMode())

	before := svc.session.SessionID()
	svc.SetPrivateMode(false)
	assert.NotEqual(t, before, svc.session.SessionID(), "leaving private mode issues a fresh session id")
}

func createPendingProposal(ctx context.Context, t *testing.T, st *store.Store, metadata map[string]any) *store.Proposal {
	episode, err := st.CreateEpisode(ctx, &store.Episode{
		ID:             "ep-" + t.Name(),
		CreatedTs:      time.Now().UnixMilli(),
		UpdatedTs:      time.Now().UnixMilli(),
		ObservationIDs: []string{"obs-1"},
		Intent:         "email_interaction",
		Context:        store.EpisodeContext{Apps: []string{"Mail"}},
		Status:         store.EpisodeClosed,
	})
	require.NoError(t, err)

	if metadata == nil {
		metadata = map[string]any{}
	}
	proposal, err := st.CreateProposal(ctx, &store.Proposal{
		ID:         "pr-" + t.Name(),
		CreatedTs:  time.Now().UnixMilli(),
		EpisodeID:  episode.ID,
		ActionType: store.ActionEmailDraft,
		Title:      "Reply to thread",
		Content:    "Thanks, I will take a look tomorrow.",
		Confidence: 80,
		Risk:       store.RiskLow,
		Status:     store.ProposalPending,
		Metadata:   metadata,
	})
	require.NoError(t, err)
	return proposal
}

func TestApproveExecutesAndRecordsDecision(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(ctx, t)
	proposal := createPendingProposal(ctx, t, st, nil)

	result, err := svc.ApproveProposal(ctx, proposal.ID, "")
	require.NoError(t, err)

	assert.Equal(t, store.ProposalExecuted, result.Proposal.Status)
	assert.True(t, result.Execution.Success)
	assert.Equal(t, 0, result.PendingCount)

	assert.Equal(t, store.DecisionApproved, result.Decision.Verdict)
	assert.Nil(t, result.Decision.EditDistance)
	require.NotNil(t, result.Decision.ExecutionSuccess)
	assert.True(t, *result.Decision.ExecutionSuccess)

	decisions, err := st.ListDecisions(ctx, &store.FindDecision{ProposalID: &proposal.ID})
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}

func TestApproveWithEditScoresDistance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(ctx, t)
	st := svc.store
	proposal := createPendingProposal(ctx, t, st, nil)

	edited := "Thanks, I will review it on Friday instead."
	result, err := svc.ApproveProposal(ctx, proposal.ID, edited)
	require.NoError(t, err)

	assert.Equal(t, store.DecisionEdited, result.Decision.Verdict)
	require.NotNil(t, result.Decision.EditDistance)
	assert.Greater(t, *result.Decision.EditDistance, 0.0)
	assert.LessOrEqual(t, *result.Decision.EditDistance, 1.0)
	assert.Equal(t, edited, result.Proposal.Content)
}

func TestApproveMissingCapabilityIsConfigError(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(ctx, t, func(o *Options) {
		o.Runner = execution.NewRunner(execution.NewRegistry(), nil)
	})
	proposal := createPendingProposal(ctx, t, st, nil)

	_, err := svc.ApproveProposal(ctx, proposal.ID, "")
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrCodeConfigError))

	// The approval itself stands; only the execution was blocked.
	stored, err := st.GetProposal(ctx, &store.FindProposal{ID: &proposal.ID})
	require.NoError(t, err)
	assert.Equal(t, store.ProposalApproved, stored.Status)

	decisions, err := st.ListDecisions(ctx, &store.FindDecision{ProposalID: &proposal.ID})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.NotEmpty(t, decisions[0].ErrorMessage)
	assert.Nil(t, decisions[0].ExecutionSuccess)
}

type flakyCapability struct {
	failures int
}

func (c *flakyCapability) Execute(ctx context.Context, req execution.Request) (map[string]any, error) {
	if c.failures > 0 {
		c.failures--
		return nil, stderrors.New("smtp connection refused")
	}
	return map[string]any{"sent": true}, nil
}

func TestApproveRetriesFailedExecution(t *testing.T) {
	ctx := context.Background()
	registry := execution.NewRegistry()
	require.NoError(t, registry.Register(store.ActionEmailDraft, &flakyCapability{failures: 1}))
	svc, st := newTestService(ctx, t, func(o *Options) {
		o.Runner = execution.NewRunner(registry, nil)
	})

	now := time.Now().UnixMilli()
	playbook, err := st.CreatePlaybook(ctx, &store.Playbook{
		ID:        "pb-retry",
		Version:   1,
		CreatedTs: now,
		UpdatedTs: now,
		Name:      "Reply to routine email",
		Trigger:   store.PlaybookTrigger{AppPattern: "Mail", Signals: []string{"email_interaction"}},
		Actions:   []store.PlaybookAction{{Type: store.ActionEmailDraft}},
		Mode:      store.ModeApprove,
		DailyCap:  10,
	})
	require.NoError(t, err)
	proposal := createPendingProposal(ctx, t, st, map[string]any{metadataPlaybookID: playbook.ID})

	first, err := svc.ApproveProposal(ctx, proposal.ID, "")
	require.NoError(t, err)
	assert.False(t, first.Execution.Success)
	assert.Equal(t, store.ProposalApproved, first.Proposal.Status, "failed execution leaves the approval standing")

	// Re-approving retries the execution instead of tripping the
	// transition guard.
	second, err := svc.ApproveProposal(ctx, proposal.ID, "")
	require.NoError(t, err)
	assert.True(t, second.Execution.Success)
	assert.Equal(t, store.ProposalExecuted, second.Proposal.Status)

	decisions, err := st.ListDecisions(ctx, &store.FindDecision{ProposalID: &proposal.ID})
	require.NoError(t, err)
	assert.Len(t, decisions, 2, "each attempt leaves a decision record")

	updated, err := st.GetPlaybook(ctx, &store.FindPlaybook{ID: &playbook.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Stats.Approvals, "a retry is not a second approval")
	assert.Equal(t, 2, updated.Stats.TotalExecutions)
	assert.Equal(t, 1, updated.Stats.SuccessfulExecutions)

	// Terminal states still reject re-approval.
	_, err = svc.ApproveProposal(ctx, proposal.ID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrIllegalStatusTransition)
}

func TestDeclineRecordsDecision(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(ctx, t)
	proposal := createPendingProposal(ctx, t, st, nil)

	count, err := svc.DeclineProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	stored, err := st.GetProposal(ctx, &store.FindProposal{ID: &proposal.ID})
	require.NoError(t, err)
	assert.Equal(t, store.ProposalDeclined, stored.Status)

	verdict := store.DecisionDeclined
	decisions, err := st.ListDecisions(ctx, &store.FindDecision{ProposalID: &proposal.ID, Verdict: &verdict})
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}

func TestApproveUnknownProposalIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(ctx, t)

	_, err := svc.ApproveProposal(ctx, "missing", "")
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrCodeNotFound))
}

func TestAutoDeclinedProposalsNeverSurface(t *testing.T) {
	ctx := context.Background()
	// Raise the floor so a bare episode (confidence 55) auto-declines.
	svc, st := newTestService(ctx, t, func(o *Options) {
		o.Policy = policy.NewEngine(policy.Thresholds{
			AutoDecline: 60, OneClick: 70, Shadow: 85, Autopilot: 90,
		}, policy.DefaultGates())
	})

	now := time.Now().UnixMilli()
	episode, err := st.CreateEpisode(ctx, &store.Episode{
		ID:             "ep-low",
		CreatedTs:      now,
		UpdatedTs:      now,
		ObservationIDs: []string{"obs-1"},
		Intent:         "email_interaction",
		Context:        store.EpisodeContext{Apps: []string{"Mail"}},
		Status:         store.EpisodeClosed,
	})
	require.NoError(t, err)

	svc.processEpisode(ctx, episode)

	pending, err := svc.PendingProposals(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	declined := store.ProposalDeclined
	recorded, err := st.ListProposals(ctx, &store.FindProposal{Status: &declined})
	require.NoError(t, err)
	assert.Len(t, recorded, 1, "auto-declined proposals are still recorded")
}

func TestApproveRollsStatsIntoPlaybook(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(ctx, t)

	now := time.Now().UnixMilli()
	playbook, err := st.CreatePlaybook(ctx, &store.Playbook{
		ID:        "pb-1",
		Version:   1,
		CreatedTs: now,
		UpdatedTs: now,
		Name:      "Reply to routine email",
		Trigger:   store.PlaybookTrigger{AppPattern: "Mail", Signals: []string{"email_interaction"}},
		Actions:   []store.PlaybookAction{{Type: store.ActionEmailDraft}},
		Mode:      store.ModeShadow,
		DailyCap:  10,
		Stats:     store.PlaybookStats{ShadowRuns: 4, ConsecutiveDeclines: 2},
	})
	require.NoError(t, err)

	proposal := createPendingProposal(ctx, t, st, map[string]any{metadataPlaybookID: playbook.ID})

	_, err = svc.ApproveProposal(ctx, proposal.ID, "")
	require.NoError(t, err)

	updated, err := st.GetPlaybook(ctx, &store.FindPlaybook{ID: &playbook.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Stats.Approvals)
	assert.Equal(t, 0, updated.Stats.ConsecutiveDeclines, "an approval resets the decline streak")
	assert.Equal(t, 1, updated.Stats.ShadowAgreements, "unedited approval of a shadow playbook counts as agreement")
	assert.Equal(t, 1, updated.Stats.TotalExecutions)
	assert.Equal(t, 1, updated.Stats.SuccessfulExecutions)
	assert.Equal(t, 1, updated.Stats.DryRunCount)
}

func TestDeclineBumpsConsecutiveDeclines(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(ctx, t)

	now := time.Now().UnixMilli()
	playbook, err := st.CreatePlaybook(ctx, &store.Playbook{
		ID:        "pb-2",
		Version:   1,
		CreatedTs: now,
		UpdatedTs: now,
		Name:      "Meeting notes",
		Trigger:   store.PlaybookTrigger{AppPattern: "Notion"},
		Actions:   []store.PlaybookAction{{Type: store.ActionNotesPage}},
		Mode:      store.ModeSuggest,
		DailyCap:  10,
		Stats:     store.PlaybookStats{ConsecutiveDeclines: 1},
	})
	require.NoError(t, err)

	proposal := createPendingProposal(ctx, t, st, map[string]any{metadataPlaybookID: playbook.ID})
	_, err = svc.DeclineProposal(ctx, proposal.ID)
	require.NoError(t, err)

	updated, err := st.GetPlaybook(ctx, &store.FindPlaybook{ID: &playbook.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Stats.ConsecutiveDeclines)
}

func TestEnableAutopilotReChecksGate(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(ctx, t)

	now := time.Now().UnixMilli()
	newPlaybook := func(id string, dryRuns int) *store.Playbook {
		playbook, err := st.CreatePlaybook(ctx, &store.Playbook{
			ID:        id,
			Version:   1,
			CreatedTs: now,
			UpdatedTs: now,
			Name:      "Calendar holds",
			Trigger:   store.PlaybookTrigger{AppPattern: "Calendar"},
			Actions:   []store.PlaybookAction{{Type: store.ActionCalendarEvent}},
			Mode:      store.ModeApprove,
			DailyCap:  5,
			Stats:     store.PlaybookStats{DryRunCount: dryRuns},
		})
		require.NoError(t, err)
		return playbook
	}

	ready := newPlaybook("pb-ready", 3)
	promoted, err := svc.EnableAutopilot(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ModeAutopilot, promoted.Mode)

	notReady := newPlaybook("pb-not-ready", 1)
	_, err = svc.EnableAutopilot(ctx, notReady.ID)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrCodeInvalidArgument))
}

func TestSubscribeReceivesPendingCount(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(ctx, t)
	proposal := createPendingProposal(ctx, t, st, nil)

	sub := svc.Subscribe()
	_, err := svc.DeclineProposal(ctx, proposal.ID)
	require.NoError(t, err)

	select {
	case count := <-sub:
		assert.Equal(t, 0, count)
	default:
		t.Fatal("expected a pending-count notification")
	}
}

func TestTriggerMatches(t *testing.T) {
	episode := &store.Episode{
		Intent: "email_interaction",
		Context: store.EpisodeContext{
			Apps: []string{"Google Chrome"},
			URLs: []string{"https://mail.google.com/mail/u/0"},
		},
	}

	tests := []struct {
		name    string
		trigger store.PlaybookTrigger
		want    bool
	}{
		{"app and intent match", store.PlaybookTrigger{AppPattern: "chrome", Signals: []string{"email_interaction"}}, true},
		{"url pattern match", store.PlaybookTrigger{URLPattern: `mail\.google`}, true},
		{"wrong intent", store.PlaybookTrigger{AppPattern: "chrome", Signals: []string{"note_taking"}}, false},
		{"wrong app", store.PlaybookTrigger{AppPattern: "safari"}, false},
		{"empty trigger matches anything", store.PlaybookTrigger{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, triggerMatches(tt.trigger, episode))
		})
	}
}

func TestNormalizedEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 0},
		{"same", "same", 0},
		{"abc", "", 1},
		{"", "abc", 1},
		{"kitten", "sitting", 3.0 / 7.0},
		{"draft", "craft", 1.0 / 5.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizedEditDistance(tt.a, tt.b), 1e-9, "%q vs %q", tt.a, tt.b)
	}
}
