// Package sessions owns the in-memory table of unlock sessions. The
// manager is the sole mutator; everything is keyed by (user, tag) and
// mutations are atomic per key. Keys are zeroed synchronously when a
// session is destroyed, which is why this table is process-local by design.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/ekurs/phrasevault/internal/logging"
	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/shared"
)

const (
	// DefaultTTL is the lifetime of a freshly issued session.
	DefaultTTL = time.Hour

	// DefaultMaxExtension caps how far past IssuedAt a session can be
	// extended in total.
	DefaultMaxExtension = 24 * time.Hour
)

// Stats is a snapshot of the session table.
type Stats struct {
	Active int
	Locked int
}

// Manager issues, extends, locks and destroys unlock sessions.
type Manager struct {
	ttl          time.Duration
	maxExtension time.Duration
	logger       logging.Logger

	mu       sync.Mutex
	sessions map[string]*models.Session

	now func() time.Time
}

// NewManager builds a session manager. Zero durations select the defaults.
func NewManager(ttl, maxExtension time.Duration, logger logging.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxExtension <= 0 {
		maxExtension = DefaultMaxExtension
	}
	return &Manager{
		ttl:          ttl,
		maxExtension: maxExtension,
		logger:       logger.With("module", "sessions"),
		sessions:     make(map[string]*models.Session),
		now:          time.Now,
	}
}

func sessionKey(userID string, tagID phrase.Identifier) string {
	return userID + "/" + tagID.String()
}

// Issue creates a session for the (user, tag) with the default lifetime,
// storing a private copy of key. Any prior session for the same pair is
// destroyed (and its key wiped) first.
func (m *Manager) Issue(userID string, tagID phrase.Identifier, key []byte) *models.Session {
	k := make([]byte, len(key))
	copy(k, key)

	now := m.now()
	s := &models.Session{
		UserID:    userID,
		TagID:     tagID,
		Key:       k,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	sk := sessionKey(userID, tagID)
	if prev, ok := m.sessions[sk]; ok {
		shared.WipeByteArray(prev.Key)
	}
	m.sessions[sk] = s
	m.mu.Unlock()

	cp := *s
	cp.Key = append([]byte(nil), s.Key...)
	return &cp
}

// Extend pushes the session's expiry out by d, bounded by the maximum total
// extension. It fails when the session is absent, expired or locked.
func (m *Manager) Extend(userID string, tagID phrase.Identifier, d time.Duration) error {
	if d <= 0 {
		return shared.ErrorInternal
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live(userID, tagID)
	if !ok {
		return shared.ErrSessionNotFound
	}
	if s.Locked {
		return shared.ErrSessionLocked
	}

	limit := s.IssuedAt.Add(m.maxExtension)
	next := s.ExpiresAt.Add(d)
	if next.After(limit) {
		next = limit
	}
	s.ExpiresAt = next
	return nil
}

// Lock blocks use of the session key without destroying the session.
func (m *Manager) Lock(userID string, tagID phrase.Identifier) error {
	return m.setLocked(userID, tagID, true)
}

// Unlock re-enables a locked session.
func (m *Manager) Unlock(userID string, tagID phrase.Identifier) error {
	return m.setLocked(userID, tagID, false)
}

func (m *Manager) setLocked(userID string, tagID phrase.Identifier, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live(userID, tagID)
	if !ok {
		return shared.ErrSessionNotFound
	}
	s.Locked = locked
	return nil
}

// Key returns a copy of the session's derived key for decryption. A locked
// session keeps its row but refuses key use.
func (m *Manager) Key(userID string, tagID phrase.Identifier) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live(userID, tagID)
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	if s.Locked {
		return nil, shared.ErrSessionLocked
	}
	return append([]byte(nil), s.Key...), nil
}

// Get returns a key-free snapshot of the session, or false when no live
// session exists for the pair.
func (m *Manager) Get(userID string, tagID phrase.Identifier) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live(userID, tagID)
	if !ok {
		return models.Session{}, false
	}
	cp := *s
	cp.Key = nil
	return cp, true
}

// Deactivate destroys the session and synchronously wipes its key.
func (m *Manager) Deactivate(userID string, tagID phrase.Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sk := sessionKey(userID, tagID)
	s, ok := m.sessions[sk]
	if !ok {
		return shared.ErrSessionNotFound
	}
	shared.WipeByteArray(s.Key)
	delete(m.sessions, sk)
	return nil
}

// DeactivateUser destroys every session belonging to the user, wiping the
// keys, and returns how many were destroyed.
func (m *Manager) DeactivateUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for sk, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		shared.WipeByteArray(s.Key)
		delete(m.sessions, sk)
		n++
	}
	return n
}

// DeactivateAll destroys every session, wiping all keys.
func (m *Manager) DeactivateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sk, s := range m.sessions {
		shared.WipeByteArray(s.Key)
		delete(m.sessions, sk)
	}
}

// Stats counts live sessions. Expired rows are ignored (and reclaimed by
// the sweep).
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var st Stats
	for _, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			continue
		}
		st.Active++
		if s.Locked {
			st.Locked++
		}
	}
	return st
}

// Sweep reclaims expired sessions, wiping their keys, and returns how many
// were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for sk, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			shared.WipeByteArray(s.Key)
			delete(m.sessions, sk)
			n++
		}
	}
	return n
}

// Run sweeps expired sessions on the given interval until ctx is done, then
// destroys all remaining sessions.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.DeactivateAll()
			return
		case <-ticker.C:
			if n := m.Sweep(m.now()); n > 0 {
				m.logger.Debug(ctx, "swept expired sessions", "count", n)
			}
		}
	}
}

// live returns the session for the pair if present and unexpired. Expired
// rows are removed on sight. Callers hold m.mu.
func (m *Manager) live(userID string, tagID phrase.Identifier) (*models.Session, bool) {
	sk := sessionKey(userID, tagID)
	s, ok := m.sessions[sk]
	if !ok {
		return nil, false
	}
	if m.now().After(s.ExpiresAt) {
		shared.WipeByteArray(s.Key)
		delete(m.sessions, sk)
		return nil, false
	}
	return s, true
}
