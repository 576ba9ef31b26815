package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/platform/logger"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/google/uuid"
)

// ResultStore implements store.ResultStore on SQL. Upserts lock the target
// row, so writers to the same session serialize while other sessions
// proceed independently.
type ResultStore struct {
	db     *DB
	clock  clock.Clock
	logger *slog.Logger
}

var _ store.ResultStore = (*ResultStore)(nil)

// NewResultStore creates a ResultStore over db. A nil clock uses real time.
func NewResultStore(db *DB, clk clock.Clock, logger *slog.Logger) *ResultStore {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultStore{
		db:     db,
		clock:  clk,
		logger: logger.With(slog.String("component", "result_store")),
	}
}

func (s *ResultStore) upsertSession(ctx context.Context, q store.DBTX, session *domain.Session) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, expires_by, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET created_at = EXCLUDED.created_at,
			expires_by = EXCLUDED.expires_by,
			is_active = EXCLUDED.is_active`,
		session.SessionID,
		s.db.Dialect.ts(session.CreatedAt),
		s.db.Dialect.ts(session.ExpiresBy),
		session.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", MapError(err))
	}
	return nil
}

func (s *ResultStore) upsertResult(ctx context.Context, q store.DBTX, result *domain.ToolResult) error {
	payload, err := json.Marshal(result.Results)
	if err != nil {
		return store.NewStoreError("tool_result", "upsert", "failed to encode results", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO tool_results (session_id, results, developable, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET results = EXCLUDED.results,
			developable = EXCLUDED.developable,
			updated_at = EXCLUDED.updated_at`,
		result.SessionID,
		string(payload),
		result.Developable,
		s.db.Dialect.ts(s.clock.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tool result: %w", MapError(err))
	}
	return nil
}

// UpsertSession implements store.ResultStore.
func (s *ResultStore) UpsertSession(ctx context.Context, session *domain.Session) error {
	if err := store.ValidateSession(session); err != nil {
		return err
	}
	return s.upsertSession(ctx, s.db, session)
}

// UpsertResult implements store.ResultStore.
func (s *ResultStore) UpsertResult(ctx context.Context, result *domain.ToolResult) error {
	if err := store.ValidateResult(result); err != nil {
		return err
	}
	return s.upsertResult(ctx, s.db, result)
}

// SaveOutcome implements store.ResultStore in a single transaction.
func (s *ResultStore) SaveOutcome(ctx context.Context, session *domain.Session, result *domain.ToolResult) error {
	if err := store.ValidateSession(session); err != nil {
		return err
	}
	if err := store.ValidateResult(result); err != nil {
		return err
	}
	if session.SessionID != result.SessionID {
		return store.NewStoreError("tool_result", "save", "session id mismatch", store.ErrInvalidEntity)
	}

	ctx = logger.WithLogger(ctx, logger.FromContextOrDefault(ctx, s.logger))
	err := store.RunInTransaction(ctx, s.db.DB, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.upsertSession(ctx, tx, session); err != nil {
			return err
		}
		return s.upsertResult(ctx, tx, result)
	})
	if err != nil {
		return MapError(err)
	}
	return nil
}

// GetResult implements store.ResultStore.
func (s *ResultStore) GetResult(ctx context.Context, sessionID uuid.UUID) (*domain.ToolResult, error) {
	var (
		res     domain.ToolResult
		payload []byte
		updated scanTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, results, developable, updated_at
		FROM tool_results
		WHERE session_id = $1`,
		sessionID,
	).Scan(&res.SessionID, &payload, &res.Developable, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tool result: %w", MapError(err))
	}
	if err := json.Unmarshal(payload, &res.Results); err != nil {
		return nil, store.NewStoreError("tool_result", "get", "failed to decode results", err)
	}
	res.UpdatedAt = updated.ptr()
	return &res, nil
}

// GetSession returns the stored session or store.ErrSessionNotFound.
func (s *ResultStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	var (
		sess             domain.Session
		created, expires scanTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, created_at, expires_by, is_active
		FROM sessions
		WHERE session_id = $1`,
		sessionID,
	).Scan(&sess.SessionID, &created, &expires, &sess.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", MapError(err))
	}
	sess.CreatedAt = created.Time
	sess.ExpiresBy = expires.Time
	return &sess, nil
}
