package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conductor-hq/conductor/store"
)

func proposalWith(confidence int, risk store.RiskLevel) *store.Proposal {
	return &store.Proposal{
		ID:         "p1",
		Confidence: confidence,
		Risk:       risk,
		Content:    "a reasonably sized draft body",
		Status:     store.ProposalPending,
	}
}

func TestDisposition(t *testing.T) {
	engine := NewEngine(DefaultThresholds(), DefaultGates())

	tests := []struct {
		name       string
		confidence int
		risk       store.RiskLevel
		want       Disposition
	}{
		{"confidence 20 always auto-declines (low)", 20, store.RiskLow, DispositionAutoDecline},
		{"confidence 20 always auto-declines (medium)", 20, store.RiskMedium, DispositionAutoDecline},
		{"confidence 20 always auto-declines (high)", 20, store.RiskHigh, DispositionAutoDecline},
		{"29 is below the line", 29, store.RiskLow, DispositionAutoDecline},
		{"mid confidence requires approval", 50, store.RiskLow, DispositionRequireApproval},
		{"75 low risk is one-click", 75, store.RiskLow, DispositionOneClickApprove},
		{"75 medium risk still requires approval", 75, store.RiskMedium, DispositionRequireApproval},
		{"87 medium risk is shadow-eligible", 87, store.RiskMedium, DispositionEligibleShadow},
		{"87 high risk requires approval", 87, store.RiskHigh, DispositionRequireApproval},
		{"95 low risk is autopilot-eligible", 95, store.RiskLow, DispositionEligibleAutopilot},
		{"95 medium risk falls to shadow", 95, store.RiskMedium, DispositionEligibleShadow},
		{"95 high risk requires approval", 95, store.RiskHigh, DispositionRequireApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Evaluate(proposalWith(tt.confidence, tt.risk))
			assert.Equal(t, tt.want, got.Disposition)
		})
	}
}

func TestDispositionIsPure(t *testing.T) {
	engine := NewEngine(DefaultThresholds(), DefaultGates())
	p := proposalWith(72, store.RiskLow)

	first := engine.Evaluate(p)
	second := engine.Evaluate(p)
	assert.Equal(t, first.Disposition, second.Disposition)
}

func TestWarningsNeverChangeDisposition(t *testing.T) {
	engine := NewEngine(DefaultThresholds(), DefaultGates())

	p := proposalWith(50, store.RiskHigh)
	p.Content = ""
	got := engine.Evaluate(p)

	assert.Equal(t, DispositionRequireApproval, got.Disposition)
	assert.Len(t, got.Warnings, 2)
}

func TestTunableThresholds(t *testing.T) {
	// The one-click breakpoint is policy, not an invariant.
	engine := NewEngine(Thresholds{AutoDecline: 30, OneClick: 80, Shadow: 85, Autopilot: 90}, DefaultGates())

	got := engine.Evaluate(proposalWith(75, store.RiskLow))
	assert.Equal(t, DispositionRequireApproval, got.Disposition)
}

func TestAutopilotEligible(t *testing.T) {
	engine := NewEngine(DefaultThresholds(), DefaultGates())
	today := "2026-08-27"

	base := &store.Playbook{
		Mode:     store.ModeAutopilot,
		DailyCap: 5,
		Stats:    store.PlaybookStats{TodayDate: today, TodayCount: 2},
	}
	proposal := proposalWith(92, store.RiskLow)

	ok, _ := engine.AutopilotEligible(base, proposal, today)
	assert.True(t, ok)

	t.Run("wrong mode", func(t *testing.T) {
		pb := *base
		pb.Mode = store.ModeApprove
		ok, reason := engine.AutopilotEligible(&pb, proposal, today)
		assert.False(t, ok)
		assert.Contains(t, reason, "not autopilot")
	})

	t.Run("daily cap reached", func(t *testing.T) {
		pb := *base
		pb.Stats.TodayCount = 5
		ok, reason := engine.AutopilotEligible(&pb, proposal, today)
		assert.False(t, ok)
		assert.Contains(t, reason, "daily cap")
	})

	t.Run("cap window resets on a new day", func(t *testing.T) {
		pb := *base
		pb.Stats.TodayDate = "2026-08-26"
		pb.Stats.TodayCount = 5
		ok, _ := engine.AutopilotEligible(&pb, proposal, today)
		assert.True(t, ok)
	})

	t.Run("high risk never unattended", func(t *testing.T) {
		ok, _ := engine.AutopilotEligible(base, proposalWith(92, store.RiskHigh), today)
		assert.False(t, ok)
	})

	t.Run("low confidence falls back", func(t *testing.T) {
		ok, _ := engine.AutopilotEligible(base, proposalWith(89, store.RiskLow), today)
		assert.False(t, ok)
	})
}
