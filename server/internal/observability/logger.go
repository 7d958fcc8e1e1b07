// Package observability provides session-scoped structured logging for the
// decision pipeline.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldSessionID is the field name for the observation session id.
	LogFieldSessionID = "session_id"
	// LogFieldStage is the field name for pipeline stage.
	LogFieldStage = "stage"
	// LogFieldEpisodeID is the field name for episode id.
	LogFieldEpisodeID = "episode_id"
	// LogFieldProposalID is the field name for proposal id.
	LogFieldProposalID = "proposal_id"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
)

// StageContext carries structured logging context through one pipeline
// stage invocation.
type StageContext struct {
	TraceID   string
	SessionID string
	Stage     string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewStageContext creates a stage context with a generated trace id.
func NewStageContext(logger *slog.Logger, stage, sessionID string) *StageContext {
	return &StageContext{
		TraceID:   uuid.New().String(),
		SessionID: sessionID,
		Stage:     stage,
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// Info logs an info message.
func (s *StageContext) Info(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, s.baseAttrsAppended(attrs...)...)
}

// Debug logs a debug message.
func (s *StageContext) Debug(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, s.baseAttrsAppended(attrs...)...)
}

// Warn logs a warning message.
func (s *StageContext) Warn(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelWarn, msg, s.baseAttrsAppended(attrs...)...)
}

// Error logs an error message with the error.
func (s *StageContext) Error(msg string, err error, attrs ...slog.Attr) {
	allAttrs := append(attrs, slog.String("error", err.Error()))
	s.Logger.LogAttrs(context.Background(), slog.LevelError, msg, s.baseAttrsAppended(allAttrs...)...)
}

// DurationMs returns the elapsed time since the stage started in
// milliseconds.
func (s *StageContext) DurationMs() int64 {
	return time.Since(s.StartTime).Milliseconds()
}

func (s *StageContext) baseAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("trace_id", s.TraceID),
		slog.String(LogFieldSessionID, s.SessionID),
		slog.String(LogFieldStage, s.Stage),
	}
}

func (s *StageContext) baseAttrsAppended(attrs ...slog.Attr) []slog.Attr {
	return append(s.baseAttrs(), attrs...)
}
