package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/adat-tool/adat-api/internal/domain"
)

// Service sentinel errors. Callers check them with errors.Is; the API layer
// maps them to HTTP status codes.
var (
	// ErrInvalidSessionID is returned when a session id is not a UUID. It is
	// raised before any store call.
	ErrInvalidSessionID = fmt.Errorf("%w: session_id must be a valid UUID", domain.ErrInvalidID)

	// ErrInvalidPayload is returned by the task handler when a task payload
	// cannot be decoded.
	ErrInvalidPayload = errors.New("invalid task payload")
)

// AssessmentServiceError records which service operation failed.
type AssessmentServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for AssessmentServiceError.
func (e *AssessmentServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("assessment service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("assessment service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *AssessmentServiceError) Unwrap() error {
	return e.Err
}

// NewAssessmentServiceError creates a new AssessmentServiceError.
func NewAssessmentServiceError(operation, message string, err error) *AssessmentServiceError {
	return &AssessmentServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// upstreamError turns an exhausted upstream deadline into
// domain.ErrUpstreamUnavailable. A caller that went away keeps its own
// cancellation error.
func upstreamError(parent context.Context, err error) error {
	if err == nil || errors.Is(err, domain.ErrUpstreamUnavailable) {
		return err
	}
	if parent.Err() != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return err
}
