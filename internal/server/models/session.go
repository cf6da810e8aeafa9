package models

import (
	"time"

	"github.com/ekurs/phrasevault/internal/server/phrase"
)

// Session is an unlock session for one secret tag. The session manager is
// its sole mutator; Key is zeroed synchronously on deactivation.
type Session struct {
	UserID    string
	TagID     phrase.Identifier
	Key       []byte
	IssuedAt  time.Time
	ExpiresAt time.Time
	Locked    bool
}

// SessionDescriptor is what boundaries hand out instead of the session
// itself: a signed token referencing the tag plus the expiry. It carries no
// key material.
type SessionDescriptor struct {
	TagID     phrase.Identifier
	Token     string
	ExpiresAt time.Time
}
