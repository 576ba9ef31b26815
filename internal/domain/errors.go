package domain

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with %w and
// classify with errors.Is.
var (
	// ErrValidation is returned when input fails shape validation. It is
	// raised before any queue or store interaction.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when a session or task identifier is not a
	// syntactically valid UUID.
	ErrInvalidID = errors.New("invalid ID")

	// ErrUpstreamUnavailable is the single "dependency down" signal for
	// queue and store connection failures. Callers should retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrEvaluationTimeout is recorded on a task whose evaluation exceeded
	// the processing ceiling.
	ErrEvaluationTimeout = errors.New("evaluation timeout")

	// ErrEvaluationFailure is recorded on a task whose evaluation raised an
	// unexpected condition.
	ErrEvaluationFailure = errors.New("evaluation failure")

	// ErrInvalidSession is returned when a session violates its invariants.
	ErrInvalidSession = errors.New("invalid session")
)
