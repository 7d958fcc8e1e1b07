package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/conductor-hq/conductor/internal/util"
	"github.com/conductor-hq/conductor/server/internal/errors"
	"github.com/conductor-hq/conductor/server/service/execution"
	"github.com/conductor-hq/conductor/server/service/policy"
	"github.com/conductor-hq/conductor/store"
)

// ApprovalResult is the outcome of approving a proposal: the decision
// record, the execution result, and the refreshed pending count.
type ApprovalResult struct {
	Proposal     *store.Proposal
	Decision     *store.Decision
	Execution    execution.Result
	PendingCount int
}

// PendingProposals lists proposals awaiting a decision.
func (s *Service) PendingProposals(ctx context.Context) ([]*store.Proposal, error) {
	status := store.ProposalPending
	return s.store.ListProposals(ctx, &store.FindProposal{Status: &status})
}

// Playbooks lists all playbooks.
func (s *Service) Playbooks(ctx context.Context) ([]*store.Playbook, error) {
	return s.store.ListPlaybooks(ctx, &store.FindPlaybook{})
}

// PendingCount returns the number of pending proposals.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.store.CountPendingProposals(ctx)
}

// ApproveProposal approves a pending proposal and executes it. A non-empty
// editedContent replaces the draft before execution and is scored as a
// normalized edit distance on the decision record. Re-approving a proposal
// left approved by a failed execution retries the execution.
func (s *Service) ApproveProposal(ctx context.Context, id, editedContent string) (*ApprovalResult, error) {
	return s.approve(ctx, id, editedContent, false)
}

func (s *Service) approve(ctx context.Context, id, editedContent string, automated bool) (*ApprovalResult, error) {
	unlock := s.proposalLocks.lock(id)
	defer unlock()

	proposal, err := s.store.GetProposal(ctx, &store.FindProposal{ID: &id})
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, errors.NotFound(fmt.Sprintf("proposal %s not found", id))
	}

	// An already-approved proposal is a manual retry of a failed
	// execution; no status change is needed. Declined and executed
	// proposals are terminal and get rejected by the transition guard.
	retry := proposal.Status == store.ProposalApproved

	verdict := store.DecisionApproved
	var editDistance *float64
	update := &store.UpdateProposal{ID: id}
	if !retry {
		approved := store.ProposalApproved
		update.Status = &approved
	}

	if editedContent != "" && editedContent != proposal.Content {
		d := NormalizedEditDistance(proposal.Content, editedContent)
		editDistance = &d
		verdict = store.DecisionEdited
		update.Content = &editedContent
		proposal.Content = editedContent
	}

	if update.Status != nil || update.Content != nil {
		if err := s.store.UpdateProposal(ctx, update); err != nil {
			return nil, err
		}
	}
	proposal.Status = store.ProposalApproved

	result, execErr := s.runner.Execute(ctx, proposal)

	decision := &store.Decision{
		ID:           util.GenUID(),
		CreatedTs:    time.Now().UnixMilli(),
		ProposalID:   proposal.ID,
		Verdict:      verdict,
		EditDistance: editDistance,
	}
	if execErr != nil {
		// Missing capability wiring. The approval stands but the
		// configuration error is never swallowed.
		decision.ErrorMessage = execErr.Error()
		if _, err := s.store.CreateDecision(ctx, decision); err != nil {
			return nil, err
		}
		s.notifyPendingCount(ctx)
		return nil, execErr
	}

	decision.ExecutionSuccess = &result.Success
	decision.ErrorMessage = result.Error
	if _, err := s.store.CreateDecision(ctx, decision); err != nil {
		return nil, err
	}

	if result.Success {
		executed := store.ProposalExecuted
		if err := s.store.UpdateProposal(ctx, &store.UpdateProposal{ID: id, Status: &executed}); err != nil {
			return nil, err
		}
		proposal.Status = store.ProposalExecuted
	}

	s.updatePlaybookOnApproval(ctx, proposal, editDistance, result, automated, retry)
	s.notifyPendingCount(ctx)

	count, err := s.store.CountPendingProposals(ctx)
	if err != nil {
		return nil, err
	}
	return &ApprovalResult{
		Proposal:     proposal,
		Decision:     decision,
		Execution:    result,
		PendingCount: count,
	}, nil
}

// DeclineProposal declines a pending proposal and returns the refreshed
// pending count.
func (s *Service) DeclineProposal(ctx context.Context, id string) (int, error) {
	unlock := s.proposalLocks.lock(id)
	defer unlock()

	proposal, err := s.store.GetProposal(ctx, &store.FindProposal{ID: &id})
	if err != nil {
		return 0, err
	}
	if proposal == nil {
		return 0, errors.NotFound(fmt.Sprintf("proposal %s not found", id))
	}

	declined := store.ProposalDeclined
	if err := s.store.UpdateProposal(ctx, &store.UpdateProposal{ID: id, Status: &declined}); err != nil {
		return 0, err
	}

	decision := &store.Decision{
		ID:         util.GenUID(),
		CreatedTs:  time.Now().UnixMilli(),
		ProposalID: proposal.ID,
		Verdict:    store.DecisionDeclined,
	}
	if _, err := s.store.CreateDecision(ctx, decision); err != nil {
		return 0, err
	}

	s.updatePlaybookOnDecline(ctx, proposal)
	s.notifyPendingCount(ctx)
	return s.store.CountPendingProposals(ctx)
}

// StartObservation enables sensor event ingestion.
func (s *Service) StartObservation() {
	s.observing.Store(true)
}

// StopObservation disables ingestion and closes out whatever the buffer
// holds as a final episode.
func (s *Service) StopObservation(ctx context.Context) {
	s.observing.Store(false)
	s.flushBuffer(ctx)
}

// SetPrivateMode toggles private mode. Enabling discards the in-flight
// buffer; disabling issues a fresh session id.
func (s *Service) SetPrivateMode(enabled bool) {
	s.session.SetPrivateMode(enabled)
}

// Observing reports whether sensor ingestion is enabled.
func (s *Service) Observing() bool {
	return s.observing.Load()
}

// PrivateMode reports whether private mode is active.
func (s *Service) PrivateMode() bool {
	return s.session.Private()
}

// EnableAutopilot is the explicit opt-in moving a playbook from approve to
// autopilot. The promotion gate is re-checked at opt-in time.
func (s *Service) EnableAutopilot(ctx context.Context, playbookID string) (*store.Playbook, error) {
	playbook, err := s.store.GetPlaybook(ctx, &store.FindPlaybook{ID: &playbookID})
	if err != nil {
		return nil, err
	}
	if playbook == nil {
		return nil, errors.NotFound(fmt.Sprintf("playbook %s not found", playbookID))
	}

	ok, reason := s.policy.Gates().CanPromote(playbook, store.ModeAutopilot)
	if !ok {
		return nil, errors.InvalidArgument(reason)
	}

	mode := store.ModeAutopilot
	if err := s.store.UpdatePlaybook(ctx, &store.UpdatePlaybook{
		ID:        playbook.ID,
		UpdatedTs: time.Now().UnixMilli(),
		Mode:      &mode,
	}); err != nil {
		return nil, err
	}
	playbook.Mode = mode
	return playbook, nil
}

// RollbackPlaybook forces a playbook back to approve mode after a bad
// unattended execution, regardless of its current level.
func (s *Service) RollbackPlaybook(ctx context.Context, playbookID string) (*store.Playbook, error) {
	playbook, err := s.store.GetPlaybook(ctx, &store.FindPlaybook{ID: &playbookID})
	if err != nil {
		return nil, err
	}
	if playbook == nil {
		return nil, errors.NotFound(fmt.Sprintf("playbook %s not found", playbookID))
	}

	mode := policy.RollbackMode()
	if err := s.store.UpdatePlaybook(ctx, &store.UpdatePlaybook{
		ID:        playbook.ID,
		UpdatedTs: time.Now().UnixMilli(),
		Mode:      &mode,
	}); err != nil {
		return nil, err
	}
	playbook.Mode = mode
	return playbook, nil
}

// updatePlaybookOnApproval rolls an approval (and its execution outcome)
// into the owning playbook's stats in one atomic update. A retry of a
// failed execution counts as another execution attempt, not a second
// approval verdict.
func (s *Service) updatePlaybookOnApproval(ctx context.Context, proposal *store.Proposal, editDistance *float64, result execution.Result, automated, retry bool) {
	playbook := s.playbookFor(ctx, proposal)
	if playbook == nil {
		return
	}

	stats := playbook.Stats
	if !retry {
		stats.Approvals++
		d := 0.0
		if editDistance != nil {
			d = *editDistance
		}
		stats.AvgEditDistance += (d - stats.AvgEditDistance) / float64(stats.Approvals)
		stats.ConsecutiveDeclines = 0
	}

	stats.TotalExecutions++
	if result.Success {
		stats.SuccessfulExecutions++
	}
	stats.LastExecutionTs = result.ExecutedAt
	if dryRun, ok := result.Output["dry_run"].(bool); ok && dryRun {
		stats.DryRunCount++
	}

	// A human approval of a shadow-tracked draft that needed no edit is an
	// agreement between the system's draft and the user's action.
	if !automated && !retry && playbook.Mode == store.ModeShadow && editDistance == nil {
		stats.ShadowAgreements++
	}

	if err := s.store.UpdatePlaybook(ctx, &store.UpdatePlaybook{
		ID:        playbook.ID,
		UpdatedTs: time.Now().UnixMilli(),
		Stats:     &stats,
	}); err != nil {
		s.logger.Error("failed to update playbook stats on approval",
			"playbook_id", playbook.ID, "error", err.Error())
	}
}

func (s *Service) updatePlaybookOnDecline(ctx context.Context, proposal *store.Proposal) {
	playbook := s.playbookFor(ctx, proposal)
	if playbook == nil {
		return
	}

	stats := playbook.Stats
	stats.ConsecutiveDeclines++
	if err := s.store.UpdatePlaybook(ctx, &store.UpdatePlaybook{
		ID:        playbook.ID,
		UpdatedTs: time.Now().UnixMilli(),
		Stats:     &stats,
	}); err != nil {
		s.logger.Error("failed to update playbook stats on decline",
			"playbook_id", playbook.ID, "error", err.Error())
	}
}

// playbookFor resolves the playbook referenced by the proposal's metadata,
// or nil when the proposal is not playbook-linked.
func (s *Service) playbookFor(ctx context.Context, proposal *store.Proposal) *store.Playbook {
	raw, ok := proposal.Metadata[metadataPlaybookID]
	if !ok {
		return nil
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return nil
	}
	playbook, err := s.store.GetPlaybook(ctx, &store.FindPlaybook{ID: &id})
	if err != nil {
		s.logger.Error("failed to resolve playbook", "playbook_id", id, "error", err.Error())
		return nil
	}
	return playbook
}
