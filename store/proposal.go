package store

import (
	"context"

	"github.com/pkg/errors"
)

// ActionType is the closed enumeration of draftable action types.
type ActionType string

const (
	ActionEmailDraft    ActionType = "email_draft"
	ActionCalendarEvent ActionType = "calendar_event"
	ActionNotesPage     ActionType = "notes_page"
	ActionGeneric       ActionType = "generic"
)

// RiskLevel classifies the blast radius of executing an action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ProposalStatus is the lifecycle status of a proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalDeclined ProposalStatus = "declined"
	ProposalExecuted ProposalStatus = "executed"
)

// CanTransitionTo reports whether moving from s to next is a legal
// one-directional transition: pending -> {approved, declined},
// approved -> executed. Declined and executed are terminal.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	switch s {
	case ProposalPending:
		return next == ProposalApproved || next == ProposalDeclined
	case ProposalApproved:
		return next == ProposalExecuted
	default:
		return false
	}
}

// Proposal is a drafted candidate action awaiting or having received a
// decision.
type Proposal struct {
	ID        string
	CreatedTs int64
	EpisodeID string

	ActionType ActionType
	Title      string
	Summary    string
	// Content is an opaque draft whose semantics depend on ActionType:
	// plain text for email, serialized structure for calendar.
	Content string

	// Confidence in [0,100].
	Confidence int
	Risk       RiskLevel
	Status     ProposalStatus

	// Metadata carries action-type-specific parameters plus the originating
	// episode context for auditing.
	Metadata map[string]any
}

// FindProposal is the find condition for proposals.
type FindProposal struct {
	ID        *string
	EpisodeID *string
	Status    *ProposalStatus

	Limit  *int
	Offset *int
}

// UpdateProposal is the update request for a proposal. Status changes are
// validated against the one-directional transition rules before reaching
// the driver.
type UpdateProposal struct {
	ID      string
	Status  *ProposalStatus
	Content *string
}

// ErrIllegalStatusTransition is returned when a proposal status update would
// move out of a terminal state or skip a stage.
var ErrIllegalStatusTransition = errors.New("illegal proposal status transition")

// CreateProposal persists a new proposal.
func (s *Store) CreateProposal(ctx context.Context, create *Proposal) (*Proposal, error) {
	proposal, err := s.driver.CreateProposal(ctx, create)
	if err != nil {
		return nil, err
	}
	s.pendingCache.Delete(pendingCountCacheKey)
	return proposal, nil
}

// ListProposals lists proposals with filter, most recent first.
func (s *Store) ListProposals(ctx context.Context, find *FindProposal) ([]*Proposal, error) {
	return s.driver.ListProposals(ctx, find)
}

// GetProposal gets a single proposal or nil when not found.
func (s *Store) GetProposal(ctx context.Context, find *FindProposal) (*Proposal, error) {
	list, err := s.driver.ListProposals(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateProposal updates a proposal, enforcing legal status transitions.
func (s *Store) UpdateProposal(ctx context.Context, update *UpdateProposal) error {
	if update.Status != nil {
		current, err := s.GetProposal(ctx, &FindProposal{ID: &update.ID})
		if err != nil {
			return err
		}
		if current == nil {
			return errors.Errorf("proposal %s not found", update.ID)
		}
		if !current.Status.CanTransitionTo(*update.Status) {
			return errors.Wrapf(ErrIllegalStatusTransition, "%s -> %s", current.Status, *update.Status)
		}
	}
	if err := s.driver.UpdateProposal(ctx, update); err != nil {
		return err
	}
	s.pendingCache.Delete(pendingCountCacheKey)
	return nil
}

// CountPendingProposals returns the number of pending proposals, cached
// briefly since every mutating command reports it.
func (s *Store) CountPendingProposals(ctx context.Context) (int, error) {
	if v, ok := s.pendingCache.Get(pendingCountCacheKey); ok {
		if count, ok := v.(int); ok {
			return count, nil
		}
	}
	status := ProposalPending
	list, err := s.driver.ListProposals(ctx, &FindProposal{Status: &status})
	if err != nil {
		return 0, err
	}
	s.pendingCache.Set(pendingCountCacheKey, len(list))
	return len(list), nil
}
