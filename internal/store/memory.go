package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/google/uuid"
)

// MemoryResultStore is an in-process ResultStore used by the memory driver
// and by tests. Writes for one session are serialized by striped
// per-session locks.
type MemoryResultStore struct {
	clock clock.Clock

	mu       sync.RWMutex
	sessions map[uuid.UUID]domain.Session
	results  map[uuid.UUID]domain.ToolResult

	locks SessionLocks
}

var _ ResultStore = (*MemoryResultStore)(nil)

// NewMemoryResultStore creates an empty store. A nil clock uses real time.
func NewMemoryResultStore(clk clock.Clock) *MemoryResultStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryResultStore{
		clock:    clk,
		sessions: make(map[uuid.UUID]domain.Session),
		results:  make(map[uuid.UUID]domain.ToolResult),
	}
}

// UpsertSession implements ResultStore.
func (s *MemoryResultStore) UpsertSession(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateSession(session); err != nil {
		return err
	}

	l := s.locks.For(session.SessionID)
	l.Lock()
	defer l.Unlock()

	s.putSession(session)
	return nil
}

// UpsertResult implements ResultStore.
func (s *MemoryResultStore) UpsertResult(ctx context.Context, result *domain.ToolResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateResult(result); err != nil {
		return err
	}

	l := s.locks.For(result.SessionID)
	l.Lock()
	defer l.Unlock()

	s.putResult(result)
	return nil
}

// SaveOutcome implements ResultStore. Both rows are written under the same
// session lock so readers never see the result without its session.
func (s *MemoryResultStore) SaveOutcome(ctx context.Context, session *domain.Session, result *domain.ToolResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateSession(session); err != nil {
		return err
	}
	if err := ValidateResult(result); err != nil {
		return err
	}
	if session.SessionID != result.SessionID {
		return NewStoreError("tool_result", "save", "session id mismatch", ErrInvalidEntity)
	}

	l := s.locks.For(session.SessionID)
	l.Lock()
	defer l.Unlock()

	s.putSession(session)
	s.putResult(result)
	return nil
}

// GetResult implements ResultStore.
func (s *MemoryResultStore) GetResult(ctx context.Context, sessionID uuid.UUID) (*domain.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[sessionID]
	if !ok {
		return nil, ErrResultNotFound
	}
	return &r, nil
}

// GetSession returns the stored session or ErrSessionNotFound.
func (s *MemoryResultStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *MemoryResultStore) putSession(session *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = *session
}

func (s *MemoryResultStore) putResult(result *domain.ToolResult) {
	stored := *result
	now := s.clock.Now().UTC()
	stored.UpdatedAt = &now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.SessionID] = stored
}

// ValidateSession checks a session before it is written.
func ValidateSession(session *domain.Session) error {
	if session == nil {
		return NewStoreError("session", "upsert", "session is nil", ErrInvalidEntity)
	}
	if err := session.Validate(); err != nil {
		return NewStoreError("session", "upsert", err.Error(), ErrInvalidEntity)
	}
	return nil
}

// ValidateResult checks a result row before it is written.
func ValidateResult(result *domain.ToolResult) error {
	if result == nil {
		return NewStoreError("tool_result", "upsert", "result is nil", ErrInvalidEntity)
	}
	if result.SessionID == uuid.Nil {
		return NewStoreError("tool_result", "upsert", "session id is required", ErrInvalidEntity)
	}
	if result.Developable != domain.DevelopableYes && result.Developable != domain.DevelopableNo {
		return NewStoreError("tool_result", "upsert",
			fmt.Sprintf("developable must be %s or %s", domain.DevelopableYes, domain.DevelopableNo),
			ErrInvalidEntity)
	}
	return nil
}
