// Package tags persists secret-tag records keyed by (user, tag identifier).
// The phrase behind a tag is never stored; only the derived identifier, the
// verifier material and the wrapped content key.
package tags

import (
	"context"

	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/server/phrase"
)

type Repository interface {
	// Create stores a new tag. Returns shared.ErrorAlreadyExists when a live
	// record with the same (user, tag) key exists.
	Create(ctx context.Context, tag *models.SecretTag) error

	// Get returns the live (non-revoked) tag for the key, or
	// shared.ErrorNotFound.
	Get(ctx context.Context, userID string, tagID phrase.Identifier) (*models.SecretTag, error)

	// UpdateVerifier replaces the tag's verifier material (phrase rotation).
	UpdateVerifier(ctx context.Context, userID string, tagID phrase.Identifier, verifier []byte) error

	// UpdateWrappedKey replaces the tag's wrapped content key.
	UpdateWrappedKey(ctx context.Context, userID string, tagID phrase.Identifier, wrapped []byte) error

	// Revoke marks the tag revoked; Get stops returning it.
	Revoke(ctx context.Context, userID string, tagID phrase.Identifier) error

	// Delete removes the record entirely.
	Delete(ctx context.Context, userID string, tagID phrase.Identifier) error
}
