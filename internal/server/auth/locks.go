package auth

import (
	"sync"

	"github.com/ekurs/phrasevault/internal/server/phrase"
)

// LockRegistry serializes protocol runs per (user, tag) key, so a
// registration and a login for the same tag can never interleave. Locks are
// created on demand and kept for the registry's lifetime; the keyspace is
// bounded by the number of registered tags plus in-flight candidates.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the (user, tag) lock is held and returns the release
// function.
func (r *LockRegistry) Acquire(userID string, tagID phrase.Identifier) func() {
	key := userID + "/" + tagID.String()

	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
