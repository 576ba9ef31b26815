package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/redact"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/adat-tool/adat-api/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return SanitizeValidationError(err)
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid session_id: must be a valid UUID"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrResultNotFound):
		return "No results found for this session"
	case errors.Is(err, store.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, task.ErrQueueClosed):
		return "Service temporarily unavailable, please retry"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError keeps the "field: rule" detail of a validation
// error and drops anything that looks sensitive.
func SanitizeValidationError(err error) string {
	msg := err.Error()
	prefix := domain.ErrValidation.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		detail := redact.String(msg[i+len(prefix):])
		if detail != "" {
			return "Validation error: " + detail
		}
	}
	return "Validation error"
}
