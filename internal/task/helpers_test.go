package task

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newTestQueue(t *testing.T) (*Queue, *MemoryStore, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFake(baseTime)
	store := NewMemoryStore()
	return NewQueue(store, clk, setupTestLogger()), store, clk
}

func submit(t *testing.T, q *Queue, taskType string) uuid.UUID {
	t.Helper()
	id, err := q.Submit(context.Background(), taskType, uuid.New(), map[string]string{"k": "v"})
	require.NoError(t, err)
	return id
}

func testPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:       1,
		ProcessingTimeout: 5 * time.Second,
		VisibilityTimeout: 10 * time.Second,
		MaxDeliveries:     1,
		PollInterval:      10 * time.Millisecond,
		Retention:         time.Hour,
	}
}
