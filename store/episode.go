package store

import "context"

// EpisodeStatus is the lifecycle status of an episode.
type EpisodeStatus string

const (
	EpisodeOpen   EpisodeStatus = "open"
	EpisodeClosed EpisodeStatus = "closed"
)

// IntentGeneralActivity is the fallback intent label when no classification
// rule matches.
const IntentGeneralActivity = "general_activity"

// EpisodeContext is the derived context bag of an episode.
type EpisodeContext struct {
	Apps           []string `json:"apps"`
	URLs           []string `json:"urls,omitempty"`
	DurationMs     int64    `json:"duration_ms"`
	ContentPreview string   `json:"content_preview,omitempty"`
}

// Episode is a contiguous span of observations interpreted as one unit of
// user intent. Content is fixed once status is closed; no observation is
// ever appended retroactively.
type Episode struct {
	ID string
	// CreatedTs and UpdatedTs are unix milliseconds. UpdatedTs >= CreatedTs.
	CreatedTs int64
	UpdatedTs int64

	// ObservationIDs is non-empty and chronologically ordered.
	ObservationIDs []string
	Intent         string
	Context        EpisodeContext
	Status         EpisodeStatus
}

// FindEpisode is the find condition for episodes.
type FindEpisode struct {
	ID     *string
	Status *EpisodeStatus
	Intent *string

	SinceTs *int64

	Limit  *int
	Offset *int
}

// UpdateEpisode is the update request for an episode. Only status moves;
// constituent observations and derived context are fixed at creation.
type UpdateEpisode struct {
	ID        string
	UpdatedTs int64
	Status    *EpisodeStatus
}

// CreateEpisode persists a new episode.
func (s *Store) CreateEpisode(ctx context.Context, create *Episode) (*Episode, error) {
	return s.driver.CreateEpisode(ctx, create)
}

// ListEpisodes lists episodes with filter.
func (s *Store) ListEpisodes(ctx context.Context, find *FindEpisode) ([]*Episode, error) {
	return s.driver.ListEpisodes(ctx, find)
}

// GetEpisode gets a single episode or nil when not found.
func (s *Store) GetEpisode(ctx context.Context, find *FindEpisode) (*Episode, error) {
	list, err := s.driver.ListEpisodes(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateEpisode updates an episode.
func (s *Store) UpdateEpisode(ctx context.Context, update *UpdateEpisode) error {
	return s.driver.UpdateEpisode(ctx, update)
}
