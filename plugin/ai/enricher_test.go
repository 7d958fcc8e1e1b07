package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-hq/conductor/store"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate(), "missing api key")

	cfg.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())

	cfg.Provider = "deepseek"
	require.Error(t, cfg.Validate(), "non-openai provider needs a base url")

	cfg.BaseURL = "https://api.deepseek.com/v1"
	require.NoError(t, cfg.Validate())

	cfg.Model = ""
	require.Error(t, cfg.Validate())
}

func TestNewEnricherRejectsInvalidConfig(t *testing.T) {
	_, err := NewEnricher(Config{})
	require.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("email_interaction", "Thanks, will do.", store.EpisodeContext{
		Apps:           []string{"Google Chrome"},
		URLs:           []string{"https://mail.google.com"},
		ContentPreview: "Re: quarterly report",
	})

	assert.True(t, strings.Contains(prompt, "email_interaction"))
	assert.True(t, strings.Contains(prompt, "Google Chrome"))
	assert.True(t, strings.Contains(prompt, "Re: quarterly report"))
	assert.True(t, strings.Contains(prompt, "Thanks, will do."))
}
