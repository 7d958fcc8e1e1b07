package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Observation model related methods. Observations are immutable.
	CreateObservation(ctx context.Context, create *Observation) (*Observation, error)
	ListObservations(ctx context.Context, find *FindObservation) ([]*Observation, error)

	// Episode model related methods.
	CreateEpisode(ctx context.Context, create *Episode) (*Episode, error)
	ListEpisodes(ctx context.Context, find *FindEpisode) ([]*Episode, error)
	UpdateEpisode(ctx context.Context, update *UpdateEpisode) error

	// Proposal model related methods.
	CreateProposal(ctx context.Context, create *Proposal) (*Proposal, error)
	ListProposals(ctx context.Context, find *FindProposal) ([]*Proposal, error)
	UpdateProposal(ctx context.Context, update *UpdateProposal) error

	// Decision model related methods. Decisions are append-only.
	CreateDecision(ctx context.Context, create *Decision) (*Decision, error)
	ListDecisions(ctx context.Context, find *FindDecision) ([]*Decision, error)

	// Playbook model related methods.
	CreatePlaybook(ctx context.Context, create *Playbook) (*Playbook, error)
	ListPlaybooks(ctx context.Context, find *FindPlaybook) ([]*Playbook, error)
	UpdatePlaybook(ctx context.Context, update *UpdatePlaybook) error
	DeletePlaybook(ctx context.Context, id string) error
}
