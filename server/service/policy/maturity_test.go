package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conductor-hq/conductor/store"
)

func playbookAt(mode store.AutomationMode, stats store.PlaybookStats) *store.Playbook {
	return &store.Playbook{
		ID:       "pb1",
		Mode:     mode,
		DailyCap: 10,
		Stats:    stats,
	}
}

func TestNextMode(t *testing.T) {
	next, ok := NextMode(store.ModeSuggest)
	assert.True(t, ok)
	assert.Equal(t, store.ModeShadow, next)

	next, ok = NextMode(store.ModeShadow)
	assert.True(t, ok)
	assert.Equal(t, store.ModeApprove, next)

	next, ok = NextMode(store.ModeApprove)
	assert.True(t, ok)
	assert.Equal(t, store.ModeAutopilot, next)

	_, ok = NextMode(store.ModeAutopilot)
	assert.False(t, ok)
}

func TestCanPromoteSuggestToShadow(t *testing.T) {
	gates := DefaultGates()

	ok, _ := gates.CanPromote(playbookAt(store.ModeSuggest, store.PlaybookStats{Approvals: 5, AvgEditDistance: 0.15}), store.ModeShadow)
	assert.True(t, ok)

	ok, reason := gates.CanPromote(playbookAt(store.ModeSuggest, store.PlaybookStats{Approvals: 4, AvgEditDistance: 0.05}), store.ModeShadow)
	assert.False(t, ok)
	assert.Contains(t, reason, "approvals")

	ok, reason = gates.CanPromote(playbookAt(store.ModeSuggest, store.PlaybookStats{Approvals: 8, AvgEditDistance: 0.2}), store.ModeShadow)
	assert.False(t, ok)
	assert.Contains(t, reason, "edit distance")
}

func TestCanPromoteShadowToApprove(t *testing.T) {
	gates := DefaultGates()

	ok, _ := gates.CanPromote(playbookAt(store.ModeShadow, store.PlaybookStats{ShadowRuns: 10, ShadowAgreements: 10}), store.ModeApprove)
	assert.True(t, ok)

	ok, _ = gates.CanPromote(playbookAt(store.ModeShadow, store.PlaybookStats{ShadowRuns: 9, ShadowAgreements: 9}), store.ModeApprove)
	assert.False(t, ok)

	ok, reason := gates.CanPromote(playbookAt(store.ModeShadow, store.PlaybookStats{ShadowRuns: 20, ShadowAgreements: 18}), store.ModeApprove)
	assert.False(t, ok)
	assert.Contains(t, reason, "agreement")
}

func TestCanPromoteApproveToAutopilot(t *testing.T) {
	gates := DefaultGates()

	ok, _ := gates.CanPromote(playbookAt(store.ModeApprove, store.PlaybookStats{DryRunCount: 3}), store.ModeAutopilot)
	assert.True(t, ok)

	ok, _ = gates.CanPromote(playbookAt(store.ModeApprove, store.PlaybookStats{DryRunCount: 2}), store.ModeAutopilot)
	assert.False(t, ok)

	uncapped := playbookAt(store.ModeApprove, store.PlaybookStats{DryRunCount: 3})
	uncapped.DailyCap = 0
	ok, reason := gates.CanPromote(uncapped, store.ModeAutopilot)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily cap")
}

func TestCanPromoteRejectsSkippedLevels(t *testing.T) {
	gates := DefaultGates()

	// Promotion is strictly linear.
	ok, _ := gates.CanPromote(playbookAt(store.ModeSuggest, store.PlaybookStats{Approvals: 100}), store.ModeApprove)
	assert.False(t, ok)

	ok, _ = gates.CanPromote(playbookAt(store.ModeAutopilot, store.PlaybookStats{}), store.ModeAutopilot)
	assert.False(t, ok)
}

func TestDemotionTriggers(t *testing.T) {
	gates := DefaultGates()

	ok, _ := gates.DemotionTrigger(playbookAt(store.ModeApprove, store.PlaybookStats{AvgEditDistance: 0.1}))
	assert.False(t, ok)

	ok, reason := gates.DemotionTrigger(playbookAt(store.ModeApprove, store.PlaybookStats{AvgEditDistance: 0.35}))
	assert.True(t, ok)
	assert.Contains(t, reason, "edit distance")

	ok, reason = gates.DemotionTrigger(playbookAt(store.ModeApprove, store.PlaybookStats{TotalExecutions: 10, SuccessfulExecutions: 8}))
	assert.True(t, ok)
	assert.Contains(t, reason, "failure rate")

	ok, reason = gates.DemotionTrigger(playbookAt(store.ModeApprove, store.PlaybookStats{ConsecutiveDeclines: 3}))
	assert.True(t, ok)
	assert.Contains(t, reason, "declines")
}

func TestDemotedModeDropsOneLevel(t *testing.T) {
	assert.Equal(t, store.ModeApprove, DemotedMode(store.ModeAutopilot))
	assert.Equal(t, store.ModeShadow, DemotedMode(store.ModeApprove))
	assert.Equal(t, store.ModeSuggest, DemotedMode(store.ModeShadow))
	assert.Equal(t, store.ModeSuggest, DemotedMode(store.ModeSuggest))
}

func TestRollbackForcesApprove(t *testing.T) {
	assert.Equal(t, store.ModeApprove, RollbackMode())
}
