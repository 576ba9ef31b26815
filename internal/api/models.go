package api

import (
	"encoding/json"

	"github.com/adat-tool/adat-api/internal/domain"
)

// Response status values of the results API.
const (
	resultStatusOK    = "ok"
	resultStatusError = "error"
)

// SubmitResponse is returned by POST /api/assess with 202 Accepted.
type SubmitResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
}

// TaskStatusResponse is returned by GET /api/task/{task_id}.
type TaskStatusResponse struct {
	TaskID  string          `json:"task_id"`
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ResultResponse is returned by GET /storage. Exactly one of Result and
// Reason is set.
type ResultResponse struct {
	Status string             `json:"status"`
	Result *domain.ToolResult `json:"result,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

// SessionResponse is returned by POST /api/sessions.
type SessionResponse struct {
	Status  string          `json:"status"`
	Session *domain.Session `json:"session"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	TS     string `json:"ts,omitempty"`
}
