package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/google/uuid"
)

// Queue is the producer-side view of the task store. Submit persists the
// task before returning; the wake channel only shortens the time idle
// workers wait before their next Claim.
type Queue struct {
	store   TaskStore
	clock   clock.Clock
	logger  *slog.Logger
	metrics Metrics

	wake chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue over store. A nil clock uses real time.
func NewQueue(store TaskStore, clk clock.Clock, logger *slog.Logger) *Queue {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:   store,
		clock:   clk,
		logger:  logger.With("component", "task_queue"),
		metrics: noopMetrics{},
		wake:    make(chan struct{}, 1),
	}
}

// SetMetrics installs a metrics recorder.
func (q *Queue) SetMetrics(m Metrics) {
	q.metrics = metricsOrNoop(m)
}

// Store returns the underlying task store.
func (q *Queue) Store() TaskStore {
	return q.store
}

// Submit serializes payload, persists a PENDING task and returns its id
// without waiting for execution.
func (q *Queue) Submit(ctx context.Context, taskType string, sessionID uuid.UUID, payload any) (uuid.UUID, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return uuid.Nil, ErrQueueClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode task payload: %w", err)
	}

	now := q.clock.Now().UTC()
	rec := &Record{
		ID:        uuid.New(),
		Type:      taskType,
		SessionID: sessionID,
		Payload:   data,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.store.Insert(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.metrics.TaskSubmitted(ctx, taskType)
	q.logger.Debug("task enqueued",
		"task_id", rec.ID,
		"task_type", taskType,
		"session_id", sessionID)

	q.signal()
	return rec.ID, nil
}

// GetState returns the current record. Unknown ids and records past their
// retention window yield ErrTaskNotFound.
func (q *Queue) GetState(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Expired(q.clock.Now()) {
		return nil, ErrTaskNotFound
	}
	return rec, nil
}

// GetStateByString parses id and returns its record. A malformed id is
// reported as ErrTaskNotFound without touching the store.
func (q *Queue) GetStateByString(ctx context.Context, id string) (*Record, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrTaskNotFound
	}
	return q.GetState(ctx, parsed)
}

// Wake returns the channel signalled after each successful Submit.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close rejects further submissions. Already persisted tasks are unaffected.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.logger.Info("task queue closed")
	}
}
