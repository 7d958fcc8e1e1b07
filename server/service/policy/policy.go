// Package policy classifies proposals into dispositions and governs how
// playbooks move between automation maturity levels.
package policy

import (
	"fmt"

	"github.com/conductor-hq/conductor/store"
)

// Disposition is the policy engine's classification of how a proposal
// should be handled.
type Disposition string

const (
	// DispositionAutoDecline records the proposal but never surfaces it.
	DispositionAutoDecline Disposition = "auto_decline"
	// DispositionRequireApproval surfaces the proposal for a full review.
	DispositionRequireApproval Disposition = "require_approval"
	// DispositionOneClickApprove surfaces with a single-tap approval.
	DispositionOneClickApprove Disposition = "one_click_approve"
	// DispositionEligibleShadow allows shadow-mode playbook evaluation.
	DispositionEligibleShadow Disposition = "eligible_shadow"
	// DispositionEligibleAutopilot allows unattended execution when the
	// owning playbook also qualifies.
	DispositionEligibleAutopilot Disposition = "eligible_autopilot"
)

// Thresholds are the tunable confidence breakpoints. They are policy
// parameters, not structural invariants.
type Thresholds struct {
	AutoDecline int
	OneClick    int
	Shadow      int
	Autopilot   int
}

// DefaultThresholds returns the default confidence breakpoints.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoDecline: 30,
		OneClick:    70,
		Shadow:      85,
		Autopilot:   90,
	}
}

// Evaluation is a disposition plus non-blocking display warnings. Warnings
// never alter the disposition.
type Evaluation struct {
	Disposition Disposition
	Warnings    []string
}

// Engine evaluates proposals against configured thresholds and gates.
type Engine struct {
	thresholds Thresholds
	gates      Gates
}

// NewEngine creates a policy engine.
func NewEngine(thresholds Thresholds, gates Gates) *Engine {
	return &Engine{thresholds: thresholds, gates: gates}
}

// Thresholds returns the configured confidence breakpoints.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Gates returns the configured promotion/demotion gates.
func (e *Engine) Gates() Gates {
	return e.gates
}

// Evaluate computes the disposition for a proposal. It is a pure, total
// function of (confidence, risk): the same proposal always yields the same
// evaluation.
func (e *Engine) Evaluate(proposal *store.Proposal) Evaluation {
	eval := Evaluation{Disposition: e.disposition(proposal.Confidence, proposal.Risk)}

	if proposal.Risk == store.RiskHigh {
		eval.Warnings = append(eval.Warnings, "high-risk action: review carefully before approving")
	}
	if len(proposal.Content) < 10 {
		eval.Warnings = append(eval.Warnings, "draft content is empty or very short")
	}
	return eval
}

func (e *Engine) disposition(confidence int, risk store.RiskLevel) Disposition {
	switch {
	case confidence < e.thresholds.AutoDecline:
		return DispositionAutoDecline
	case confidence >= e.thresholds.Autopilot && risk == store.RiskLow:
		return DispositionEligibleAutopilot
	case confidence >= e.thresholds.Shadow && risk != store.RiskHigh:
		return DispositionEligibleShadow
	case confidence >= e.thresholds.OneClick && risk == store.RiskLow:
		return DispositionOneClickApprove
	default:
		return DispositionRequireApproval
	}
}

// AutopilotEligible reports whether a specific execution may run
// unattended. All four conditions must hold; otherwise the action falls
// back to requiring approval.
func (e *Engine) AutopilotEligible(playbook *store.Playbook, proposal *store.Proposal, today string) (bool, string) {
	if playbook.Mode != store.ModeAutopilot {
		return false, fmt.Sprintf("playbook mode is %s, not autopilot", playbook.Mode)
	}
	if todayCount(playbook, today) >= playbook.DailyCap {
		return false, fmt.Sprintf("daily cap of %d reached", playbook.DailyCap)
	}
	if proposal.Risk == store.RiskHigh {
		return false, "high-risk proposals never run unattended"
	}
	if proposal.Confidence < e.thresholds.Autopilot {
		return false, fmt.Sprintf("confidence %d below autopilot threshold %d", proposal.Confidence, e.thresholds.Autopilot)
	}
	return true, ""
}

func todayCount(playbook *store.Playbook, today string) int {
	if playbook.Stats.TodayDate != today {
		return 0
	}
	return playbook.Stats.TodayCount
}
