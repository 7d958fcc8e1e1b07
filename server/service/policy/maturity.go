package policy

import (
	"fmt"

	"github.com/conductor-hq/conductor/store"
)

// Gates are the acceptance predicates of the automation maturity state
// machine. Promotion is linear (suggest -> shadow -> approve -> autopilot);
// demotion steps back exactly one level, except rollback which forces
// approve.
type Gates struct {
	// suggest -> shadow
	ShadowMinApprovals    int
	ShadowMaxEditDistance float64

	// shadow -> approve
	ApproveMinShadowRuns int
	ApproveMinAgreement  float64

	// approve -> autopilot (plus the explicit user opt-in, which is the
	// promotion command itself)
	AutopilotMinDryRuns int

	// demotion triggers
	DemoteEditDistance        float64
	DemoteFailureRate         float64
	DemoteConsecutiveDeclines int
}

// DefaultGates returns the default promotion/demotion gates.
func DefaultGates() Gates {
	return Gates{
		ShadowMinApprovals:        5,
		ShadowMaxEditDistance:     0.15,
		ApproveMinShadowRuns:      10,
		ApproveMinAgreement:       0.95,
		AutopilotMinDryRuns:       3,
		DemoteEditDistance:        0.30,
		DemoteFailureRate:         0.10,
		DemoteConsecutiveDeclines: 3,
	}
}

// NextMode returns the next maturity level, or ok=false at the top.
func NextMode(mode store.AutomationMode) (store.AutomationMode, bool) {
	switch mode {
	case store.ModeSuggest:
		return store.ModeShadow, true
	case store.ModeShadow:
		return store.ModeApprove, true
	case store.ModeApprove:
		return store.ModeAutopilot, true
	default:
		return mode, false
	}
}

// DemotedMode returns the mode one level down, floored at suggest.
func DemotedMode(mode store.AutomationMode) store.AutomationMode {
	switch mode {
	case store.ModeAutopilot:
		return store.ModeApprove
	case store.ModeApprove:
		return store.ModeShadow
	default:
		return store.ModeSuggest
	}
}

// RollbackMode is the mode any rollback forces, regardless of the current
// level.
func RollbackMode() store.AutomationMode {
	return store.ModeApprove
}

// CanPromote reports whether the playbook clears the gate into target.
// Target must be exactly the next level; gates are necessary but not
// sufficient for the final approve -> autopilot edge, which additionally
// requires the explicit opt-in command.
func (g Gates) CanPromote(playbook *store.Playbook, target store.AutomationMode) (bool, string) {
	next, ok := NextMode(playbook.Mode)
	if !ok || next != target {
		return false, fmt.Sprintf("cannot promote from %s to %s", playbook.Mode, target)
	}

	stats := playbook.Stats
	switch target {
	case store.ModeShadow:
		if stats.Approvals < g.ShadowMinApprovals {
			return false, fmt.Sprintf("needs %d approvals, has %d", g.ShadowMinApprovals, stats.Approvals)
		}
		if stats.AvgEditDistance > g.ShadowMaxEditDistance {
			return false, fmt.Sprintf("average edit distance %.2f exceeds %.2f", stats.AvgEditDistance, g.ShadowMaxEditDistance)
		}
		return true, ""
	case store.ModeApprove:
		if stats.ShadowRuns < g.ApproveMinShadowRuns {
			return false, fmt.Sprintf("needs %d shadow runs, has %d", g.ApproveMinShadowRuns, stats.ShadowRuns)
		}
		agreement := float64(stats.ShadowAgreements) / float64(stats.ShadowRuns)
		if agreement < g.ApproveMinAgreement {
			return false, fmt.Sprintf("shadow agreement %.2f below %.2f", agreement, g.ApproveMinAgreement)
		}
		return true, ""
	case store.ModeAutopilot:
		if stats.DryRunCount < g.AutopilotMinDryRuns {
			return false, fmt.Sprintf("needs %d completed dry runs, has %d", g.AutopilotMinDryRuns, stats.DryRunCount)
		}
		if playbook.DailyCap <= 0 {
			return false, "autopilot requires a configured daily cap"
		}
		return true, ""
	default:
		return false, fmt.Sprintf("unknown target mode %s", target)
	}
}

// DemotionTrigger reports whether any demotion trigger currently fires for
// the playbook, with the reason.
func (g Gates) DemotionTrigger(playbook *store.Playbook) (bool, string) {
	stats := playbook.Stats
	if stats.AvgEditDistance > g.DemoteEditDistance {
		return true, fmt.Sprintf("edit distance trend %.2f above %.2f", stats.AvgEditDistance, g.DemoteEditDistance)
	}
	if stats.TotalExecutions > 0 {
		failureRate := float64(stats.TotalExecutions-stats.SuccessfulExecutions) / float64(stats.TotalExecutions)
		if failureRate > g.DemoteFailureRate {
			return true, fmt.Sprintf("failure rate %.2f above %.2f", failureRate, g.DemoteFailureRate)
		}
	}
	if stats.ConsecutiveDeclines >= g.DemoteConsecutiveDeclines {
		return true, fmt.Sprintf("%d consecutive declines", stats.ConsecutiveDeclines)
	}
	return false, ""
}
