// Package errors provides coded errors for the decision pipeline.
package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for pipeline operations.
type ErrorCode string

const (
	// ErrCodeSensorGap indicates missing or partial context from the OS
	// sensor. Handled by lowering derived confidence, never by failing
	// ingestion.
	ErrCodeSensorGap ErrorCode = "SENSOR_GAP"
	// ErrCodeNoTemplate indicates an episode intent with no registered
	// draft template. Expected outcome, not a failure.
	ErrCodeNoTemplate ErrorCode = "NO_TEMPLATE"
	// ErrCodeCapabilityFailed indicates the external execution call failed.
	ErrCodeCapabilityFailed ErrorCode = "CAPABILITY_FAILED"
	// ErrCodeConfigError indicates a missing capability wiring or other
	// misconfiguration. Never swallowed.
	ErrCodeConfigError ErrorCode = "CONFIG_ERROR"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the referenced record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// PipelineError represents a structured error for pipeline operations.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *PipelineError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// CapabilityFailed creates a capability-failure error.
func CapabilityFailed(msg string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeCapabilityFailed, Message: msg, Cause: cause}
}

// ConfigError creates a configuration error.
func ConfigError(msg string) *PipelineError {
	return &PipelineError{Code: ErrCodeConfigError, Message: msg}
}

// InvalidArgument creates an invalid-argument error.
func InvalidArgument(msg string) *PipelineError {
	return &PipelineError{Code: ErrCodeInvalidArgument, Message: msg}
}

// NotFound creates a not-found error.
func NotFound(msg string) *PipelineError {
	return &PipelineError{Code: ErrCodeNotFound, Message: msg}
}

// Timeout creates a timeout error.
func Timeout(msg string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeTimeout, Message: msg, Cause: cause}
}

// IsCode reports whether err is a PipelineError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var pe *PipelineError
	for err != nil {
		if e, ok := err.(*PipelineError); ok {
			pe = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return pe != nil && pe.Code == code
}
