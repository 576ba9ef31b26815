package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"github.com/google/uuid"
)

// ContextKey is the type of request-scoped context keys.
type ContextKey string

const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of random bytes in a generated trace ID
	TraceIDLength = 16 // 32 hex characters

	// maxTraceIDLength caps trace IDs accepted from callers.
	maxTraceIDLength = 128
)

// SetTraceID adds a trace ID to the context. A non-empty, bounded incoming
// ID is kept so callers can correlate their own logs; otherwise a new one
// is generated.
func SetTraceID(ctx context.Context, incoming string) context.Context {
	traceID := incoming
	if traceID == "" || len(traceID) > maxTraceIDLength {
		traceID = generateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// generateTraceID returns 32 random hex characters. If the system random
// source fails it falls back to a UUID, never to a static value.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if n, err := rand.Read(b); err != nil || n != TraceIDLength {
		slog.Error("failed to generate secure random trace ID",
			"error", err,
			"bytes_read", n,
			"fallback", "uuid")
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}
