package execution

import (
	"context"
	"log/slog"
	"time"
)

// LogCapability is a stand-in capability that records the request instead
// of calling an external service. It is the default wiring for action
// types without a configured client, and what dry runs execute against.
type LogCapability struct {
	logger *slog.Logger
}

// NewLogCapability creates a logging capability.
func NewLogCapability(logger *slog.Logger) *LogCapability {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogCapability{logger: logger}
}

// Execute logs the request and reports success.
func (c *LogCapability) Execute(_ context.Context, req Request) (map[string]any, error) {
	c.logger.Info("capability dry run",
		slog.String("action_type", string(req.ActionType)),
		slog.Int("content_length", len(req.Content)))
	return map[string]any{
		"dry_run":     true,
		"action_type": string(req.ActionType),
		"recorded_at": time.Now().UnixMilli(),
	}, nil
}
