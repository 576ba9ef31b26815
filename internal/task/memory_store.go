package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process TaskStore. It backs the memory queue driver
// and the package tests; Claim exclusivity comes from a single mutex.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Record
	order []uuid.UUID
}

var _ TaskStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[uuid.UUID]*Record),
	}
}

func cloneRecord(r *Record) *Record {
	c := *r
	if r.LeaseExpiresAt != nil {
		t := *r.LeaseExpiresAt
		c.LeaseExpiresAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Insert implements TaskStore.
func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[rec.ID]; exists {
		return ErrDuplicateTask
	}
	s.tasks[rec.ID] = cloneRecord(rec)
	s.order = append(s.order, rec.ID)
	return nil
}

// Get implements TaskStore.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneRecord(rec), nil
}

// Claim implements TaskStore.
func (s *MemoryStore) Claim(ctx context.Context, p ClaimParams) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		rec := s.tasks[id]
		if !claimable(rec, p.Now, p.MaxDeliveries) {
			continue
		}
		lease := p.Now.Add(p.Lease)
		rec.Status = StatusProcessing
		rec.Attempts++
		rec.WorkerID = p.WorkerID
		rec.ClaimToken = uuid.New()
		rec.LeaseExpiresAt = &lease
		rec.UpdatedAt = p.Now
		return cloneRecord(rec), nil
	}
	return nil, ErrNoTask
}

func claimable(rec *Record, now time.Time, maxDeliveries int) bool {
	switch rec.Status {
	case StatusPending:
		return true
	case StatusProcessing:
		return rec.LeaseExpiresAt != nil && !now.Before(*rec.LeaseExpiresAt) &&
			rec.Attempts < maxDeliveries
	default:
		return false
	}
}

// Complete implements TaskStore.
func (s *MemoryStore) Complete(ctx context.Context, p CompleteParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[p.ID]
	if !ok {
		return ErrTaskNotFound
	}
	if rec.Status != StatusProcessing || rec.ClaimToken != p.Token {
		return ErrLeaseLost
	}
	finish(rec, p.Outcome, p.Now, p.Retention)
	return nil
}

func finish(rec *Record, o Outcome, now time.Time, retention time.Duration) {
	expires := now.Add(retention)
	finished := now
	rec.Status = o.Status
	rec.UpdatedAt = now
	rec.FinishedAt = &finished
	rec.ExpiresAt = &expires
	rec.LeaseExpiresAt = nil
	if o.Status == StatusSuccess {
		rec.Result = o.Result
		rec.Error = ""
	} else {
		rec.Result = nil
		rec.Error = o.Error
	}
}

// ExpireLeases implements TaskStore.
func (s *MemoryStore) ExpireLeases(ctx context.Context, now time.Time, maxDeliveries int, retention time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.tasks {
		if rec.Status != StatusProcessing || rec.LeaseExpiresAt == nil {
			continue
		}
		if now.Before(*rec.LeaseExpiresAt) || rec.Attempts < maxDeliveries {
			continue
		}
		finish(rec, Failed(DetailWorkerLost), now, retention)
		n++
	}
	return n, nil
}

// DeleteExpired implements TaskStore.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	n := 0
	for _, id := range s.order {
		rec := s.tasks[id]
		if rec.Status.Terminal() && rec.Expired(now) {
			delete(s.tasks, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return n, nil
}
