package store

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

// lockStripes is the number of mutexes shared by all sessions.
const lockStripes = 64

// SessionLocks serializes writes per session with a fixed array of
// mutexes, so memory use does not grow with the number of sessions seen.
// Two sessions that hash to the same stripe wait on each other. The zero
// value is ready to use.
type SessionLocks struct {
	stripes [lockStripes]sync.Mutex
}

// For returns the mutex guarding id.
func (l *SessionLocks) For(id uuid.UUID) *sync.Mutex {
	return &l.stripes[stripe(id)]
}

func stripe(id uuid.UUID) int {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return int(h.Sum32() % lockStripes)
}
