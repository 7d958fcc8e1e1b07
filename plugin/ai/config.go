// Package ai provides optional generative draft enrichment over any
// OpenAI-compatible chat completion API.
package ai

import (
	"fmt"
	"time"
)

// Config configures the enrichment client.
type Config struct {
	// Provider selects the endpoint family: "openai" or any
	// OpenAI-compatible provider ("deepseek", "siliconflow", ...) paired
	// with a BaseURL.
	Provider string
	APIKey   string
	BaseURL  string
	Model    string

	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// DefaultConfig returns a config with sensible request limits; provider,
// key and model still need to be filled in.
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		MaxTokens:   1024,
		Temperature: 0.3,
		Timeout:     30 * time.Second,
	}
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("ai: api key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("ai: model is required")
	}
	if c.Provider != "openai" && c.BaseURL == "" {
		return fmt.Errorf("ai: provider %q requires a base url", c.Provider)
	}
	return nil
}
