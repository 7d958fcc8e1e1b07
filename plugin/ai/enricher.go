package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/conductor-hq/conductor/store"
)

// Enricher rewrites template drafts with a chat completion model. It
// implements the drafter's Enricher interface; a failing call degrades to
// the template output on the caller's side.
type Enricher struct {
	client *openai.Client
	config Config
}

// NewEnricher creates an enrichment client.
func NewEnricher(cfg Config) (*Enricher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Enricher{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

const systemPrompt = `You improve short action drafts generated from a user's recent activity.
Rewrite the draft to be clear and natural while preserving its meaning and format.
Return only the rewritten draft, no commentary.`

// EnrichDraft asks the model to rewrite the draft body given the intent
// and the episode context. An empty model response is an error so the
// caller keeps the template output.
func (e *Enricher) EnrichDraft(ctx context.Context, intent, content string, episodeCtx store.EpisodeContext) (string, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.config.Model,
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(intent, content, episodeCtx)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ai: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ai: empty completion response")
	}

	enriched := strings.TrimSpace(resp.Choices[0].Message.Content)
	if enriched == "" {
		return "", fmt.Errorf("ai: model returned an empty draft")
	}
	return enriched, nil
}

func buildPrompt(intent, content string, episodeCtx store.EpisodeContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Activity: %s\n", intent)
	if len(episodeCtx.Apps) > 0 {
		fmt.Fprintf(&b, "Applications: %s\n", strings.Join(episodeCtx.Apps, ", "))
	}
	if len(episodeCtx.URLs) > 0 {
		fmt.Fprintf(&b, "Pages: %s\n", strings.Join(episodeCtx.URLs, ", "))
	}
	if episodeCtx.ContentPreview != "" {
		fmt.Fprintf(&b, "Observed content: %s\n", episodeCtx.ContentPreview)
	}
	fmt.Fprintf(&b, "\nDraft to improve:\n%s", content)
	return b.String()
}
