package task

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertPending(t *testing.T, s *MemoryStore, created time.Time) uuid.UUID {
	t.Helper()
	rec := &Record{
		ID:        uuid.New(),
		Type:      "mock",
		SessionID: uuid.New(),
		Payload:   json.RawMessage(`{}`),
		Status:    StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, s.Insert(context.Background(), rec))
	return rec.ID
}

func claimParams(now time.Time, maxDeliveries int) ClaimParams {
	return ClaimParams{WorkerID: "w-0", Now: now, Lease: time.Minute, MaxDeliveries: maxDeliveries}
}

func TestMemoryStore_ClaimInSubmissionOrder(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	first := insertPending(t, s, baseTime)
	second := insertPending(t, s, baseTime)

	rec, err := s.Claim(ctx, claimParams(baseTime, 1))
	require.NoError(t, err)
	assert.Equal(t, first, rec.ID)
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, "w-0", rec.WorkerID)
	assert.NotEqual(t, uuid.Nil, rec.ClaimToken)
	require.NotNil(t, rec.LeaseExpiresAt)
	assert.Equal(t, baseTime.Add(time.Minute), *rec.LeaseExpiresAt)

	rec, err = s.Claim(ctx, claimParams(baseTime, 1))
	require.NoError(t, err)
	assert.Equal(t, second, rec.ID)

	_, err = s.Claim(ctx, claimParams(baseTime, 1))
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestMemoryStore_ClaimIsExclusive(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	const tasks = 100
	for i := 0; i < tasks; i++ {
		insertPending(t, s, baseTime)
	}

	var (
		mu      sync.Mutex
		claimed = make(map[uuid.UUID]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, err := s.Claim(context.Background(), claimParams(baseTime, 1))
				if err != nil {
					assert.ErrorIs(t, err, ErrNoTask)
					return
				}
				mu.Lock()
				claimed[rec.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, tasks)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "task %s claimed more than once", id)
	}
}

func TestMemoryStore_CompleteRequiresCurrentClaim(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	id := insertPending(t, s, baseTime)
	rec, err := s.Claim(ctx, claimParams(baseTime, 1))
	require.NoError(t, err)

	stale := CompleteParams{ID: id, Token: uuid.New(), Outcome: Failed("x"), Now: baseTime, Retention: time.Hour}
	assert.ErrorIs(t, s.Complete(ctx, stale), ErrLeaseLost)

	ok := CompleteParams{ID: id, Token: rec.ClaimToken, Outcome: Succeeded(json.RawMessage(`{"a":1}`)), Now: baseTime, Retention: time.Hour}
	require.NoError(t, s.Complete(ctx, ok))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.JSONEq(t, `{"a":1}`, string(got.Result))
	assert.Empty(t, got.Error)
	assert.Nil(t, got.LeaseExpiresAt)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, baseTime.Add(time.Hour), *got.ExpiresAt)

	// Terminal states never regress.
	again := CompleteParams{ID: id, Token: rec.ClaimToken, Outcome: Failed("late"), Now: baseTime, Retention: time.Hour}
	assert.ErrorIs(t, s.Complete(ctx, again), ErrLeaseLost)
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)

	assert.ErrorIs(t, s.Complete(ctx, CompleteParams{ID: uuid.New()}), ErrTaskNotFound)
}

func TestMemoryStore_NoRedeliveryWithSingleAttempt(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	id := insertPending(t, s, baseTime)
	_, err := s.Claim(ctx, claimParams(baseTime, 1))
	require.NoError(t, err)

	later := baseTime.Add(2 * time.Minute)
	_, err = s.Claim(ctx, claimParams(later, 1))
	assert.ErrorIs(t, err, ErrNoTask)

	n, err := s.ExpireLeases(ctx, later, 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, got.Status)
	assert.Equal(t, DetailWorkerLost, got.Error)
}

func TestMemoryStore_RedeliveryKeepsProcessing(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	id := insertPending(t, s, baseTime)
	first, err := s.Claim(ctx, claimParams(baseTime, 2))
	require.NoError(t, err)

	// Lease still held.
	_, err = s.Claim(ctx, claimParams(baseTime.Add(30*time.Second), 2))
	assert.ErrorIs(t, err, ErrNoTask)

	later := baseTime.Add(2 * time.Minute)
	n, err := s.ExpireLeases(ctx, later, 2, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "attempts remain, lease must not be failed yet")

	second, err := s.Claim(ctx, claimParams(later, 2))
	require.NoError(t, err)
	assert.Equal(t, id, second.ID)
	assert.Equal(t, StatusProcessing, second.Status)
	assert.Equal(t, 2, second.Attempts)
	assert.NotEqual(t, first.ClaimToken, second.ClaimToken)

	err = s.Complete(ctx, CompleteParams{ID: id, Token: first.ClaimToken, Outcome: Succeeded(nil), Now: later})
	assert.ErrorIs(t, err, ErrLeaseLost, "the first worker lost its claim")
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	done := insertPending(t, s, baseTime)
	pending := insertPending(t, s, baseTime)

	rec, err := s.Claim(ctx, claimParams(baseTime, 1))
	require.NoError(t, err)
	require.Equal(t, done, rec.ID)
	require.NoError(t, s.Complete(ctx, CompleteParams{
		ID: done, Token: rec.ClaimToken, Outcome: Failed("boom"), Now: baseTime, Retention: time.Minute,
	}))

	n, err := s.DeleteExpired(ctx, baseTime.Add(30*time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteExpired(ctx, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, done)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = s.Get(ctx, pending)
	assert.NoError(t, err)
}

func TestMemoryStore_InsertDuplicate(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	rec := &Record{ID: uuid.New(), Status: StatusPending}
	require.NoError(t, s.Insert(context.Background(), rec))
	assert.ErrorIs(t, s.Insert(context.Background(), rec), ErrDuplicateTask)
}

func TestStatus(t *testing.T) {
	t.Parallel()
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailure.Terminal())
	assert.True(t, StatusProcessing.Valid())
	assert.False(t, Status("completed").Valid())
}
