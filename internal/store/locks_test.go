package store_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adat-tool/adat-api/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSessionLocks_SameSessionSameMutex(t *testing.T) {
	t.Parallel()
	var locks store.SessionLocks
	id := uuid.New()
	assert.Same(t, locks.For(id), locks.For(id))
}

func TestSessionLocks_BoundedAcrossSessions(t *testing.T) {
	t.Parallel()
	var locks store.SessionLocks
	seen := make(map[*sync.Mutex]struct{})
	for i := 0; i < 10_000; i++ {
		seen[locks.For(uuid.New())] = struct{}{}
	}
	assert.LessOrEqual(t, len(seen), 64)
	assert.Greater(t, len(seen), 1, "sessions spread over several stripes")
}

func TestSessionLocks_SerializesOneSession(t *testing.T) {
	t.Parallel()
	var locks store.SessionLocks
	id := uuid.New()

	held := locks.For(id)
	held.Lock()

	var acquired atomic.Bool
	go func() {
		l := locks.For(id)
		l.Lock()
		acquired.Store(true)
		l.Unlock()
	}()

	assert.Never(t, acquired.Load, 50*time.Millisecond, 5*time.Millisecond)
	held.Unlock()
	assert.Eventually(t, acquired.Load, time.Second, 5*time.Millisecond)
}
