package sessions

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekurs/phrasevault/internal/logging"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/shared"
)

const testUser = "user-1"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewManager(0, 0, logger)
}

func testTag(b byte) phrase.Identifier {
	var id phrase.Identifier
	for i := range id {
		id[i] = b
	}
	return id
}

func TestManager_IssueAndKey(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)
	key := []byte("0123456789abcdef0123456789abcdef")

	s := m.Issue(testUser, tag, key)
	assert.Equal(t, testUser, s.UserID)
	assert.Equal(t, tag, s.TagID)
	assert.Equal(t, key, s.Key)
	assert.Equal(t, s.IssuedAt.Add(DefaultTTL), s.ExpiresAt)

	got, err := m.Key(testUser, tag)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestManager_IssueCopiesKey(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)
	key := []byte("0123456789abcdef0123456789abcdef")

	m.Issue(testUser, tag, key)
	key[0] = 'X'

	got, err := m.Key(testUser, tag)
	require.NoError(t, err)
	assert.EqualValues(t, '0', got[0])
}

func TestManager_ReissueWipesPriorKey(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)

	first := m.Issue(testUser, tag, []byte("first-session-key-first-session-"))
	held := m.sessions[sessionKey(testUser, tag)].Key

	m.Issue(testUser, tag, []byte("second-session-key-second-sessio"))

	assert.True(t, bytes.Equal(held, make([]byte, len(held))), "prior key not wiped")
	assert.NotEqual(t, first.Key, held)

	got, err := m.Key(testUser, tag)
	require.NoError(t, err)
	assert.Equal(t, []byte("second-session-key-second-sessio"), got)
}

func TestManager_SessionsAreScopedPerUser(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)

	m.Issue("user-1", tag, []byte("first-session-key-first-session-"))
	m.Issue("user-2", tag, []byte("second-session-key-second-sessio"))

	k1, err := m.Key("user-1", tag)
	require.NoError(t, err)
	k2, err := m.Key("user-2", tag)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	require.NoError(t, m.Deactivate("user-1", tag))
	_, err = m.Key("user-2", tag)
	assert.NoError(t, err, "other user's session must survive")
}

func TestManager_KeyUnknownTag(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Key(testUser, testTag(9))
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}

func TestManager_LockUnlock(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)
	m.Issue(testUser, tag, []byte("0123456789abcdef0123456789abcdef"))

	require.NoError(t, m.Lock(testUser, tag))

	_, err := m.Key(testUser, tag)
	assert.ErrorIs(t, err, shared.ErrSessionLocked)

	s, ok := m.Get(testUser, tag)
	require.True(t, ok, "locked session should survive")
	assert.True(t, s.Locked)
	assert.Nil(t, s.Key)

	require.NoError(t, m.Unlock(testUser, tag))
	_, err = m.Key(testUser, tag)
	assert.NoError(t, err)
}

func TestManager_LockUnknownTag(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.Lock(testUser, testTag(9)), shared.ErrSessionNotFound)
	assert.ErrorIs(t, m.Unlock(testUser, testTag(9)), shared.ErrSessionNotFound)
}

func TestManager_Extend(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)
	s := m.Issue(testUser, tag, []byte("0123456789abcdef0123456789abcdef"))

	require.NoError(t, m.Extend(testUser, tag, 30*time.Minute))

	got, ok := m.Get(testUser, tag)
	require.True(t, ok)
	assert.Equal(t, s.ExpiresAt.Add(30*time.Minute), got.ExpiresAt)
}

func TestManager_ExtendBoundedByMaxExtension(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)
	s := m.Issue(testUser, tag, []byte("0123456789abcdef0123456789abcdef"))

	require.NoError(t, m.Extend(testUser, tag, 100*24*time.Hour))

	got, ok := m.Get(testUser, tag)
	require.True(t, ok)
	assert.Equal(t, s.IssuedAt.Add(DefaultMaxExtension), got.ExpiresAt)
}

func TestManager_ExtendLockedRejected(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)
	m.Issue(testUser, tag, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, m.Lock(testUser, tag))

	assert.ErrorIs(t, m.Extend(testUser, tag, time.Minute), shared.ErrSessionLocked)
}

func TestManager_ExtendUnknownTag(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.Extend(testUser, testTag(9), time.Minute), shared.ErrSessionNotFound)
}

func TestManager_Deactivate(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)
	m.Issue(testUser, tag, []byte("0123456789abcdef0123456789abcdef"))
	held := m.sessions[sessionKey(testUser, tag)].Key

	require.NoError(t, m.Deactivate(testUser, tag))

	assert.True(t, bytes.Equal(held, make([]byte, len(held))), "key not wiped")
	_, err := m.Key(testUser, tag)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	assert.ErrorIs(t, m.Deactivate(testUser, tag), shared.ErrSessionNotFound)
}

func TestManager_DeactivateUser(t *testing.T) {
	m := newTestManager(t)
	m.Issue("user-1", testTag(1), []byte("0123456789abcdef0123456789abcdef"))
	m.Issue("user-1", testTag(2), []byte("0123456789abcdef0123456789abcdef"))
	m.Issue("user-2", testTag(3), []byte("0123456789abcdef0123456789abcdef"))

	assert.Equal(t, 2, m.DeactivateUser("user-1"))

	_, err := m.Key("user-2", testTag(3))
	assert.NoError(t, err)
	assert.Equal(t, Stats{Active: 1}, m.Stats())
}

func TestManager_DeactivateAll(t *testing.T) {
	m := newTestManager(t)
	m.Issue(testUser, testTag(1), []byte("0123456789abcdef0123456789abcdef"))
	m.Issue(testUser, testTag(2), []byte("0123456789abcdef0123456789abcdef"))

	m.DeactivateAll()

	assert.Equal(t, Stats{}, m.Stats())
}

func TestManager_ExpiryInvisible(t *testing.T) {
	m := newTestManager(t)
	tag := testTag(1)
	m.Issue(testUser, tag, []byte("0123456789abcdef0123456789abcdef"))

	m.now = func() time.Time { return time.Now().Add(DefaultTTL + time.Second) }

	_, err := m.Key(testUser, tag)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, ok := m.Get(testUser, tag)
	assert.False(t, ok)
}

func TestManager_Sweep(t *testing.T) {
	m := newTestManager(t)
	m.Issue(testUser, testTag(1), []byte("0123456789abcdef0123456789abcdef"))
	m.Issue(testUser, testTag(2), []byte("0123456789abcdef0123456789abcdef"))
	held := m.sessions[sessionKey(testUser, testTag(1))].Key

	n := m.Sweep(time.Now().Add(DefaultTTL + time.Second))
	assert.Equal(t, 2, n)
	assert.True(t, bytes.Equal(held, make([]byte, len(held))), "swept key not wiped")
	assert.Empty(t, m.sessions)
}

func TestManager_Stats(t *testing.T) {
	m := newTestManager(t)
	m.Issue(testUser, testTag(1), []byte("0123456789abcdef0123456789abcdef"))
	m.Issue(testUser, testTag(2), []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, m.Lock(testUser, testTag(2)))

	st := m.Stats()
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 1, st.Locked)
}
