package execution

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/conductor-hq/conductor/server/internal/errors"
	"github.com/conductor-hq/conductor/store"
)

// Result is the structured outcome of one execution attempt.
type Result struct {
	Success bool
	Output  map[string]any
	Error   string
	// ExecutedAt is the call's start time in unix milliseconds, so
	// duration is attributable to the capability call.
	ExecutedAt int64
}

// Runner dispatches one approved proposal to its capability. It never
// retries internally: retry policy belongs to the capability layer or the
// caller.
type Runner struct {
	registry *Registry
	limiter  *RateLimiter
	logger   *slog.Logger
}

// NewRunner creates a runner over the given registry.
func NewRunner(registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: registry,
		limiter:  NewRateLimiter(),
		logger:   logger,
	}
}

// Execute invokes the capability for the proposal's action type. The
// returned error is non-nil only for configuration errors (no capability
// wired); capability failures and timeouts come back as a failed Result so
// the decision-logging step never hangs or gets skipped.
func (r *Runner) Execute(ctx context.Context, proposal *store.Proposal) (Result, error) {
	capability, err := r.registry.Get(proposal.ActionType)
	if err != nil {
		return Result{}, err
	}

	executedAt := time.Now().UnixMilli()
	result := Result{ExecutedAt: executedAt}

	if err := r.limiter.Wait(ctx, string(proposal.ActionType)); err != nil {
		result.Error = codedError(proposal.ActionType, err).Error()
		return result, nil
	}

	output, err := capability.Execute(ctx, Request{
		ActionType: proposal.ActionType,
		Content:    proposal.Content,
		Metadata:   proposal.Metadata,
	})
	if err != nil {
		coded := codedError(proposal.ActionType, err)
		r.logger.Warn("capability execution failed",
			slog.String("proposal_id", proposal.ID),
			slog.String("action_type", string(proposal.ActionType)),
			slog.String("error", coded.Error()))
		result.Error = coded.Error()
		return result, nil
	}

	result.Success = true
	result.Output = output
	return result, nil
}

// codedError classifies a capability-layer error: a context deadline is a
// timeout, everything else is a capability failure.
func codedError(actionType store.ActionType, err error) *errors.PipelineError {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout(string(actionType)+" capability call timed out", err)
	}
	return errors.CapabilityFailed(string(actionType)+" capability call failed", err)
}
