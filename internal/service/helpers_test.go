package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/domain/eligibility"
	"github.com/adat-tool/adat-api/internal/service"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/adat-tool/adat-api/internal/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func elmStreet() *domain.AssessmentInput {
	return &domain.AssessmentInput{
		ProjectName:       "Elm St",
		ProjectUnitsTotal: 10,
		Address:           "1 Elm",
		City:              "Town",
		State:             "NY",
		Zip:               "10001",
		Affordability:     domain.Affordability{AMI30: 3},
	}
}

// countingResultStore counts calls that reach the wrapped store.
type countingResultStore struct {
	store.ResultStore
	calls atomic.Int32
}

func (c *countingResultStore) GetResult(ctx context.Context, id uuid.UUID) (*domain.ToolResult, error) {
	c.calls.Add(1)
	return c.ResultStore.GetResult(ctx, id)
}

func (c *countingResultStore) UpsertSession(ctx context.Context, s *domain.Session) error {
	c.calls.Add(1)
	return c.ResultStore.UpsertSession(ctx, s)
}

// failingResultStore rejects every write.
type failingResultStore struct {
	store.ResultStore
	err error
}

func (f *failingResultStore) SaveOutcome(context.Context, *domain.Session, *domain.ToolResult) error {
	return f.err
}

// blockingQueue blocks every call until its context ends.
type blockingQueue struct{}

func (blockingQueue) Submit(ctx context.Context, _ string, _ uuid.UUID, _ any) (uuid.UUID, error) {
	<-ctx.Done()
	return uuid.Nil, ctx.Err()
}

func (blockingQueue) GetState(ctx context.Context, _ uuid.UUID) (*task.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	clock   *clock.FakeClock
	tasks   *task.MemoryStore
	queue   *task.Queue
	results *countingResultStore
	svc     service.AssessmentService
	pool    *task.WorkerPool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(baseTime)
	tasks := task.NewMemoryStore()
	queue := task.NewQueue(tasks, clk, testLogger())
	results := &countingResultStore{ResultStore: store.NewMemoryResultStore(clk)}

	svc, err := service.NewAssessmentService(queue, results, service.Options{Clock: clk}, testLogger())
	require.NoError(t, err)

	pool := task.NewWorkerPool(tasks, queue.Wake(), task.WorkerPoolConfig{
		WorkerCount:       1,
		ProcessingTimeout: 5 * time.Second,
		VisibilityTimeout: 10 * time.Second,
		MaxDeliveries:     1,
		PollInterval:      10 * time.Millisecond,
		Retention:         time.Hour,
	}, clk, testLogger())
	pool.Register(task.TypeAssessment, service.NewAssessmentHandler(
		eligibility.NewEvaluator(clk, 0), results, clk, 0, testLogger()))

	return &fixture{clock: clk, tasks: tasks, queue: queue, results: results, svc: svc, pool: pool}
}

func (f *fixture) runOne(t *testing.T) {
	t.Helper()
	ran, err := f.pool.RunOnce(context.Background(), "test-worker")
	require.NoError(t, err)
	require.True(t, ran, "expected a task to be processed")
}
