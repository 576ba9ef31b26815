package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long a session stays valid after it is written.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Session groups one assessment lifecycle. Its identifier never changes;
// re-upserting a session refreshes the timestamps only.
type Session struct {
	SessionID uuid.UUID `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresBy time.Time `json:"expires_by"`
	IsActive  bool      `json:"is_active"`
}

// NewSession returns an active session created at now and expiring ttl later.
func NewSession(id uuid.UUID, now time.Time, ttl time.Duration) (*Session, error) {
	s := &Session{
		SessionID: id,
		CreatedAt: now.UTC(),
		ExpiresBy: now.UTC().Add(ttl),
		IsActive:  true,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate enforces a non-nil id and expiry strictly after creation.
func (s *Session) Validate() error {
	if s.SessionID == uuid.Nil {
		return fmt.Errorf("%w: session_id is required", ErrInvalidSession)
	}
	if !s.ExpiresBy.After(s.CreatedAt) {
		return fmt.Errorf("%w: expires_by must be after created_at", ErrInvalidSession)
	}
	return nil
}
