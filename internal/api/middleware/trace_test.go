package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adat-tool/adat-api/internal/api/shared"
	"github.com/adat-tool/adat-api/internal/platform/logger"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMiddleware(t *testing.T) {
	log, buf := logger.NewTestLogger(t)

	var seenTrace string
	handler := chimw.RequestID(NewTraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTrace = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-42", seenTrace)
	assert.Equal(t, "req-42", w.Header().Get(TraceHeader))

	entries, err := buf.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "req-42", e["trace_id"])
	}
	assert.Equal(t, "inside handler", entries[1]["msg"])
}

func TestTraceMiddleware_GeneratesID(t *testing.T) {
	var seenTrace string
	handler := NewTraceMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTrace = shared.GetTraceID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, seenTrace, shared.TraceIDLength*2)
	assert.Equal(t, seenTrace, w.Header().Get(TraceHeader))
}
