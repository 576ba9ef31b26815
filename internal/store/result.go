package store

import (
	"context"

	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/google/uuid"
)

// ResultStore persists sessions and their current result.
//
// Writes are idempotent upserts keyed by session id: repeating a write
// replaces the earlier row instead of adding one. Writes for different
// sessions must not block each other; writes for the same session are
// serialized and the last one wins.
type ResultStore interface {
	// UpsertSession creates or refreshes a session row.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// UpsertResult creates or replaces the result for result.SessionID.
	UpsertResult(ctx context.Context, result *domain.ToolResult) error

	// SaveOutcome writes the session and then its result. SQL backends do
	// both in one transaction.
	SaveOutcome(ctx context.Context, session *domain.Session, result *domain.ToolResult) error

	// GetResult returns the current result or ErrResultNotFound.
	GetResult(ctx context.Context, sessionID uuid.UUID) (*domain.ToolResult, error)
}
