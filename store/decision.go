package store

import "context"

// DecisionVerdict is the kind of decision recorded against a proposal.
type DecisionVerdict string

const (
	DecisionApproved DecisionVerdict = "approved"
	DecisionDeclined DecisionVerdict = "declined"
	DecisionEdited   DecisionVerdict = "edited"
)

// Decision is an append-only audit record of one human (or automated)
// decision event. Decisions are never updated or deleted.
type Decision struct {
	ID         string
	CreatedTs  int64
	ProposalID string
	Verdict    DecisionVerdict

	// EditDistance is the normalized (0-1) distance between the original
	// draft and what the user approved. Present only when the draft was
	// altered before approval.
	EditDistance *float64

	// ExecutionSuccess is present once the decision led to an execution
	// attempt.
	ExecutionSuccess *bool
	ErrorMessage     string
}

// FindDecision is the find condition for decisions.
type FindDecision struct {
	ID         *string
	ProposalID *string
	Verdict    *DecisionVerdict

	SinceTs *int64

	Limit  *int
	Offset *int
}

// CreateDecision appends a decision record.
func (s *Store) CreateDecision(ctx context.Context, create *Decision) (*Decision, error) {
	return s.driver.CreateDecision(ctx, create)
}

// ListDecisions lists decisions with filter, oldest first.
func (s *Store) ListDecisions(ctx context.Context, find *FindDecision) ([]*Decision, error) {
	return s.driver.ListDecisions(ctx, find)
}
