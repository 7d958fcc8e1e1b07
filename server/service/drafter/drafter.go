// Package drafter maps closed episodes to candidate actions. Not every
// episode yields a draft: intents without a registered template are
// silently skipped.
package drafter

import (
	"context"
	"log/slog"
	"time"

	"github.com/conductor-hq/conductor/internal/util"
	"github.com/conductor-hq/conductor/server/internal/errors"
	"github.com/conductor-hq/conductor/store"
)

const maxConfidence = 95

// Template renders one intent into a candidate action.
type Template struct {
	ActionType store.ActionType
	Render     func(episode *store.Episode) (title, summary, content string)
}

// Enricher optionally rewrites a drafted body; production setups plug a
// generative model in here. A failing enricher degrades to the template
// output.
type Enricher interface {
	EnrichDraft(ctx context.Context, intent, content string, episodeCtx store.EpisodeContext) (string, error)
}

// Drafter holds the intent -> template registry.
type Drafter struct {
	templates map[string]Template
	enricher  Enricher
	logger    *slog.Logger
}

// Option configures a Drafter.
type Option func(*Drafter)

// WithEnricher sets the optional generative enrichment step.
func WithEnricher(e Enricher) Option {
	return func(d *Drafter) { d.enricher = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Drafter) { d.logger = logger }
}

// New creates a drafter with the built-in templates registered.
func New(opts ...Option) *Drafter {
	d := &Drafter{
		templates: map[string]Template{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	registerBuiltins(d)
	return d
}

// Register adds a template for an intent. Duplicate registrations are
// rejected so wiring mistakes surface at startup, not at draft time.
func (d *Drafter) Register(intent string, template Template) error {
	if _, ok := d.templates[intent]; ok {
		return errors.ConfigError("template already registered for intent " + intent)
	}
	if template.Render == nil {
		return errors.ConfigError("template for intent " + intent + " has no renderer")
	}
	d.templates[intent] = template
	return nil
}

// Draft turns a closed episode into a pending proposal, or returns
// (nil, nil) when the intent has no template.
func (d *Drafter) Draft(ctx context.Context, episode *store.Episode) (*store.Proposal, error) {
	template, ok := d.templates[episode.Intent]
	if !ok {
		return nil, nil
	}

	title, summary, content := template.Render(episode)

	if d.enricher != nil {
		enriched, err := d.enricher.EnrichDraft(ctx, episode.Intent, content, episode.Context)
		if err != nil {
			d.logger.Warn("draft enrichment failed, keeping template output",
				slog.String("episode_id", episode.ID), slog.String("error", err.Error()))
		} else if enriched != "" {
			content = enriched
		}
	}

	proposal := &store.Proposal{
		ID:         util.GenUID(),
		CreatedTs:  time.Now().UnixMilli(),
		EpisodeID:  episode.ID,
		ActionType: template.ActionType,
		Title:      title,
		Summary:    summary,
		Content:    content,
		Confidence: Confidence(episode),
		Risk:       RiskFor(template.ActionType),
		Status:     store.ProposalPending,
		Metadata: map[string]any{
			"intent":          episode.Intent,
			"apps":            episode.Context.Apps,
			"urls":            episode.Context.URLs,
			"duration_ms":     episode.Context.DurationMs,
			"content_preview": episode.Context.ContentPreview,
		},
	}
	return proposal, nil
}

// Confidence scores how actionable an episode looks: additive over
// observation count, content preview presence and duration, clamped to 95.
func Confidence(episode *store.Episode) int {
	confidence := 50

	countBonus := 5 * len(episode.ObservationIDs)
	if countBonus > 20 {
		countBonus = 20
	}
	confidence += countBonus

	if episode.Context.ContentPreview != "" {
		confidence += 15
	}
	if episode.Context.DurationMs > 10_000 {
		confidence += 10
	}

	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	return confidence
}

// RiskFor returns the fixed risk level per action type. Email drafts are
// never auto-sent; calendar events notify third parties.
func RiskFor(actionType store.ActionType) store.RiskLevel {
	switch actionType {
	case store.ActionCalendarEvent:
		return store.RiskMedium
	case store.ActionEmailDraft, store.ActionNotesPage:
		return store.RiskLow
	default:
		return store.RiskMedium
	}
}
