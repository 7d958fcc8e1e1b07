package drafter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-hq/conductor/store"
)

func episodeFixture(intent string, observations int, preview string, durationMs int64) *store.Episode {
	ids := make([]string, observations)
	for i := range ids {
		ids[i] = fmt.Sprintf("o%d", i)
	}
	return &store.Episode{
		ID:             "ep-1",
		ObservationIDs: ids,
		Intent:         intent,
		Context: store.EpisodeContext{
			Apps:           []string{"Chrome"},
			URLs:           []string{"https://mail.google.com"},
			DurationMs:     durationMs,
			ContentPreview: preview,
		},
		Status: store.EpisodeClosed,
	}
}

func TestDraftEmailInteraction(t *testing.T) {
	d := New()

	proposal, err := d.Draft(context.Background(), episodeFixture("email_interaction", 3, "Hi, can we reschedule", 1200))
	require.NoError(t, err)
	require.NotNil(t, proposal)

	assert.Equal(t, store.ActionEmailDraft, proposal.ActionType)
	assert.Equal(t, store.RiskLow, proposal.Risk)
	assert.Equal(t, store.ProposalPending, proposal.Status)
	assert.Equal(t, "ep-1", proposal.EpisodeID)
	assert.Contains(t, proposal.Content, "Hi, can we reschedule")
	assert.Equal(t, "email_interaction", proposal.Metadata["intent"])
}

func TestDraftNoTemplateIsSilent(t *testing.T) {
	d := New()

	proposal, err := d.Draft(context.Background(), episodeFixture("general_activity", 3, "", 0))
	require.NoError(t, err)
	assert.Nil(t, proposal, "unregistered intent yields no draft and no error")
}

func TestDraftCalendarRisk(t *testing.T) {
	d := New()

	proposal, err := d.Draft(context.Background(), episodeFixture("calendar_planning", 2, "standup at 9", 500))
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.Equal(t, store.ActionCalendarEvent, proposal.ActionType)
	assert.Equal(t, store.RiskMedium, proposal.Risk, "calendar events notify third parties")
}

func TestRegisterDuplicate(t *testing.T) {
	d := New()

	err := d.Register("email_interaction", Template{
		ActionType: store.ActionGeneric,
		Render:     func(*store.Episode) (string, string, string) { return "", "", "" },
	})
	require.Error(t, err)
}

func TestConfidenceFormula(t *testing.T) {
	tests := []struct {
		name         string
		observations int
		preview      string
		durationMs   int64
		want         int
	}{
		{"base single observation", 1, "", 0, 55},
		{"count bonus caps at 20", 10, "", 0, 70},
		{"preview adds 15", 1, "text", 0, 70},
		{"duration over 10s adds 10", 1, "", 10_001, 65},
		{"duration exactly 10s adds nothing", 1, "", 10_000, 55},
		{"everything clamps at 95", 30, "text", 60_000, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(episodeFixture("x", tt.observations, tt.preview, tt.durationMs))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfidenceMonotonic(t *testing.T) {
	prev := 0
	for n := 1; n <= 12; n++ {
		c := Confidence(episodeFixture("x", n, "", 0))
		assert.GreaterOrEqual(t, c, prev, "confidence must not decrease with observation count")
		assert.LessOrEqual(t, c, 95)
		prev = c
	}

	withPreview := Confidence(episodeFixture("x", 3, "p", 0))
	without := Confidence(episodeFixture("x", 3, "", 0))
	assert.Greater(t, withPreview, without)
}

type fakeEnricher struct {
	out string
	err error
}

func (f *fakeEnricher) EnrichDraft(_ context.Context, _, _ string, _ store.EpisodeContext) (string, error) {
	return f.out, f.err
}

func TestDraftEnrichment(t *testing.T) {
	d := New(WithEnricher(&fakeEnricher{out: "polished draft"}))

	proposal, err := d.Draft(context.Background(), episodeFixture("email_interaction", 2, "preview", 0))
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.Equal(t, "polished draft", proposal.Content)
}

func TestDraftEnrichmentFailureFallsBack(t *testing.T) {
	d := New(WithEnricher(&fakeEnricher{err: assert.AnError}))

	proposal, err := d.Draft(context.Background(), episodeFixture("email_interaction", 2, "preview", 0))
	require.NoError(t, err, "enrichment failure degrades, never fails the draft")
	require.NotNil(t, proposal)
	assert.Contains(t, proposal.Content, "preview")
}
