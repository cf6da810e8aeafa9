// Package models holds the server-side data model: secret tags, journal
// entries, sessions and the submission classification result.
package models

import (
	"time"

	"github.com/ekurs/phrasevault/internal/server/phrase"
)

// SecretTag is the server-side record of a registered secret phrase. The
// phrase itself never appears here: TagID is a one-way derivation and
// Verifier is the OPAQUE registration record.
type SecretTag struct {
	UserID     string
	TagID      phrase.Identifier
	Verifier   []byte
	WrappedKey []byte
	CreatedAt  time.Time
	Revoked    bool
}
