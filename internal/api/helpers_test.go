package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adat-tool/adat-api/internal/api/middleware"
	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/domain/eligibility"
	"github.com/adat-tool/adat-api/internal/service"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/adat-tool/adat-api/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore counts reads that reach the result store.
type countingStore struct {
	*store.MemoryResultStore
	reads atomic.Int32
}

func (c *countingStore) GetResult(ctx context.Context, id uuid.UUID) (*domain.ToolResult, error) {
	c.reads.Add(1)
	return c.MemoryResultStore.GetResult(ctx, id)
}

type testServer struct {
	router  http.Handler
	pool    *task.WorkerPool
	results *countingStore
	clock   *clock.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clk := clock.NewFake(baseTime)
	tasks := task.NewMemoryStore()
	queue := task.NewQueue(tasks, clk, testLogger())
	results := &countingStore{MemoryResultStore: store.NewMemoryResultStore(clk)}

	svc, err := service.NewAssessmentService(queue, results, service.Options{Clock: clk}, testLogger())
	require.NoError(t, err)

	pool := task.NewWorkerPool(tasks, nil, task.WorkerPoolConfig{ProcessingTimeout: 5 * time.Second}, clk, testLogger())
	pool.Register(task.TypeAssessment, service.NewAssessmentHandler(
		eligibility.NewEvaluator(clk, 0), results, clk, 0, testLogger()))

	return &testServer{
		router:  newRouter(svc, clk),
		pool:    pool,
		results: results,
		clock:   clk,
	}
}

func newRouter(svc service.AssessmentService, clk clock.Clock, checks ...HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewTraceMiddleware(testLogger()))
	NewAssessmentHandler(svc, testLogger()).RegisterRoutes(r)
	NewHealthHandler(clk, testLogger(), checks...).RegisterRoutes(r)
	return r
}

func (s *testServer) process(t *testing.T) {
	t.Helper()
	ran, err := s.pool.RunOnce(context.Background(), "test-worker")
	require.NoError(t, err)
	require.True(t, ran)
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func elmStreetBody() map[string]any {
	return map[string]any{
		"project_name":        "Elm St",
		"project_units_total": 10,
		"affordability":       map[string]int{"ami30": 3, "ami50": 0, "ami60": 0, "ami70": 0, "ami80": 0},
		"address":             "1 Elm",
		"city":                "Town",
		"state":               "NY",
		"zip":                 "10001",
	}
}

// stubService returns fixed errors from every operation.
type stubService struct {
	err error
}

func (s stubService) SubmitAssessment(context.Context, *domain.AssessmentInput) (*service.Submission, error) {
	return nil, s.err
}

func (s stubService) GetTaskStatus(context.Context, string) (*service.TaskStatus, error) {
	return nil, s.err
}

func (s stubService) GetResult(context.Context, string) (*domain.ToolResult, error) {
	return nil, s.err
}

func (s stubService) CreateSession(context.Context, *service.SessionRequest) (*domain.Session, error) {
	return nil, s.err
}
