package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
)

const (
	sessionsTable    = "sessions"
	toolResultsTable = "tool_results"

	sessionColumns = "session_id,created_at,expires_by,is_active"
	resultColumns  = "session_id,results,developable"
)

// resultRow is the tool_results row as the hosted table defines it. The
// SQL stores track updated_at; the hosted table has no such column.
type resultRow struct {
	SessionID   uuid.UUID               `json:"session_id"`
	Results     domain.AssessmentResult `json:"results"`
	Developable string                  `json:"developable"`
}

// ResultStore implements store.ResultStore over PostgREST. PostgREST has no
// multi-statement transactions, so SaveOutcome writes the session and then
// the result while holding the session's lock stripe.
type ResultStore struct {
	client *client
	logger *slog.Logger

	locks store.SessionLocks
}

var _ store.ResultStore = (*ResultStore)(nil)

// NewResultStore creates a ResultStore for the project in cfg.
func NewResultStore(cfg Config, logger *slog.Logger) *ResultStore {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "supabase_store"))
	return &ResultStore{
		client: newClient(cfg, logger),
		logger: logger,
	}
}

// upsert posts rows to table, merging on session_id. Rows are encoded
// here so an encoding failure is reported instead of reaching the client.
func (s *ResultStore) upsert(ctx context.Context, table string, rows any) error {
	body, err := json.Marshal(rows)
	if err != nil {
		return store.NewStoreError(table, "upsert", err.Error(), store.ErrInvalidEntity)
	}
	return s.client.exec(ctx, http.MethodPost, table, func(c *postgrest.Client) *postgrest.FilterBuilder {
		return c.From(table).Upsert(json.RawMessage(body), "session_id", "minimal", "")
	}, nil)
}

// selectOne reads the row for sessionID from table into out, a pointer to
// a slice.
func (s *ResultStore) selectOne(ctx context.Context, table, columns string, sessionID uuid.UUID, out any) error {
	return s.client.exec(ctx, http.MethodGet, table, func(c *postgrest.Client) *postgrest.FilterBuilder {
		return c.From(table).Select(columns, "", false).Eq("session_id", sessionID.String()).Limit(1, "")
	}, out)
}

func (s *ResultStore) upsertSession(ctx context.Context, session *domain.Session) error {
	row := *session
	row.CreatedAt = row.CreatedAt.UTC()
	row.ExpiresBy = row.ExpiresBy.UTC()
	if err := s.upsert(ctx, sessionsTable, []domain.Session{row}); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (s *ResultStore) upsertResult(ctx context.Context, result *domain.ToolResult) error {
	row := resultRow{
		SessionID:   result.SessionID,
		Results:     result.Results,
		Developable: result.Developable,
	}
	if err := s.upsert(ctx, toolResultsTable, []resultRow{row}); err != nil {
		return fmt.Errorf("failed to upsert tool result: %w", err)
	}
	return nil
}

// UpsertSession implements store.ResultStore.
func (s *ResultStore) UpsertSession(ctx context.Context, session *domain.Session) error {
	if err := store.ValidateSession(session); err != nil {
		return err
	}
	l := s.locks.For(session.SessionID)
	l.Lock()
	defer l.Unlock()
	return s.upsertSession(ctx, session)
}

// UpsertResult implements store.ResultStore.
func (s *ResultStore) UpsertResult(ctx context.Context, result *domain.ToolResult) error {
	if err := store.ValidateResult(result); err != nil {
		return err
	}
	l := s.locks.For(result.SessionID)
	l.Lock()
	defer l.Unlock()
	return s.upsertResult(ctx, result)
}

// SaveOutcome implements store.ResultStore. The session row is written
// first; tool_results may reference it.
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

	l := s.locks.For(session.SessionID)
	l.Lock()
	defer l.Unlock()

	if err := s.upsertSession(ctx, session); err != nil {
		return err
	}
	if err := s.upsertResult(ctx, result); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "stored outcome",
		"session_id", session.SessionID,
		"developable", result.Developable)
	return nil
}

// GetResult implements store.ResultStore.
func (s *ResultStore) GetResult(ctx context.Context, sessionID uuid.UUID) (*domain.ToolResult, error) {
	var rows []domain.ToolResult
	if err := s.selectOne(ctx, toolResultsTable, resultColumns, sessionID, &rows); err != nil {
		return nil, fmt.Errorf("failed to get tool result: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrResultNotFound
	}
	return &rows[0], nil
}

// GetSession returns the stored session or store.ErrSessionNotFound.
func (s *ResultStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	var rows []domain.Session
	if err := s.selectOne(ctx, sessionsTable, sessionColumns, sessionID, &rows); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.ErrSessionNotFound
	}
	return &rows[0], nil
}

// Ping checks that the project answers with the configured key.
func (s *ResultStore) Ping(ctx context.Context) error {
	return s.client.exec(ctx, http.MethodGet, sessionsTable, func(c *postgrest.Client) *postgrest.FilterBuilder {
		return c.From(sessionsTable).Select("session_id", "", false).Limit(1, "")
	}, nil)
}
