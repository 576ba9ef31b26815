package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task. Transitions only move forward:
// PENDING -> PROCESSING -> SUCCESS | FAILURE.
type Status string

// Task states as reported to pollers.
const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"
)

// Terminal reports whether s is SUCCESS or FAILURE.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailure:
		return true
	}
	return false
}

// TypeAssessment is the task type for eligibility assessments.
const TypeAssessment = "assessment"

// Failure details recorded by the queue itself.
const (
	DetailWorkerLost  = "worker lost: lease expired"
	DetailUnknownType = "unknown task type"
)

var (
	// ErrTaskNotFound is returned for unknown, malformed or expired task ids.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoTask is returned by Claim when nothing is claimable.
	ErrNoTask = errors.New("no task available")

	// ErrLeaseLost is returned by Complete when the caller no longer holds
	// the claim on the task.
	ErrLeaseLost = errors.New("task lease lost")

	// ErrDuplicateTask is returned by Insert when the id already exists.
	ErrDuplicateTask = errors.New("task already exists")

	// ErrQueueClosed is returned by Submit after Close.
	ErrQueueClosed = errors.New("task queue is closed")
)

// Record is the durable row for one task.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	SessionID uuid.UUID       `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
	Status    Status          `json:"status"`
	// Result is set only on SUCCESS.
	Result json.RawMessage `json:"result,omitempty"`
	// Error is set only on FAILURE.
	Error string `json:"error,omitempty"`

	Attempts       int        `json:"attempts"`
	WorkerID       string     `json:"worker_id,omitempty"`
	ClaimToken     uuid.UUID  `json:"-"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether a terminal record is past its retention window.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Outcome is the terminal result a worker records for a claimed task.
type Outcome struct {
	Status Status
	Result json.RawMessage
	Error  string
}

// Succeeded builds a SUCCESS outcome.
func Succeeded(result json.RawMessage) Outcome {
	return Outcome{Status: StatusSuccess, Result: result}
}

// Failed builds a FAILURE outcome with a client-safe detail.
func Failed(detail string) Outcome {
	return Outcome{Status: StatusFailure, Error: detail}
}

// ClaimParams controls one Claim call.
type ClaimParams struct {
	WorkerID string
	Now      time.Time
	// Lease is how long the claim stays exclusive.
	Lease time.Duration
	// MaxDeliveries bounds how many times a task may be claimed in total.
	MaxDeliveries int
}

// CompleteParams records a terminal outcome for a claimed task.
type CompleteParams struct {
	ID      uuid.UUID
	Token   uuid.UUID
	Outcome Outcome
	Now     time.Time
	// Retention is how long the terminal row stays readable.
	Retention time.Duration
}

// TaskStore persists task records. Implementations must make Claim
// exclusive: one claimable row is handed to exactly one caller.
type TaskStore interface {
	// Insert persists a new PENDING record.
	Insert(ctx context.Context, rec *Record) error

	// Get returns the record or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// Claim hands out the oldest claimable record, or ErrNoTask. A record is
	// claimable when PENDING, or PROCESSING with an expired lease and
	// attempts below MaxDeliveries.
	Claim(ctx context.Context, p ClaimParams) (*Record, error)

	// Complete moves a PROCESSING record held by p.Token to its terminal
	// state. It returns ErrLeaseLost if the token no longer matches.
	Complete(ctx context.Context, p CompleteParams) error

	// ExpireLeases fails PROCESSING records whose lease expired and whose
	// deliveries are exhausted. It returns the number of records failed.
	ExpireLeases(ctx context.Context, now time.Time, maxDeliveries int, retention time.Duration) (int, error)

	// DeleteExpired removes terminal records past their retention window.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Handler executes one task type. The returned JSON becomes the task result.
// Handlers must honour ctx cancellation.
type Handler interface {
	Handle(ctx context.Context, rec *Record) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rec *Record) (json.RawMessage, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, rec *Record) (json.RawMessage, error) {
	return f(ctx, rec)
}

// Metrics receives task lifecycle events. A nil Metrics is valid.
type Metrics interface {
	TaskSubmitted(ctx context.Context, taskType string)
	TaskFinished(ctx context.Context, taskType string, status Status, elapsed time.Duration)
	TaskTimedOut(ctx context.Context, taskType string)
	LeasesExpired(ctx context.Context, n int)
}

type noopMetrics struct{}

func (noopMetrics) TaskSubmitted(context.Context, string)                        {}
func (noopMetrics) TaskFinished(context.Context, string, Status, time.Duration) {}
func (noopMetrics) TaskTimedOut(context.Context, string)                         {}
func (noopMetrics) LeasesExpired(context.Context, int)                           {}

func metricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
