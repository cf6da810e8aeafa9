// Package entries persists journal entries. Only Regular content and the
// residual text of Mixed submissions ever reach this package; PasswordOnly
// submissions are filtered out before storage is touched.
package entries

import (
	"context"

	"github.com/ekurs/phrasevault/internal/server/models"
)

type Repository interface {
	// Create stores a new entry.
	Create(ctx context.Context, entry *models.Entry) error

	// SelectByUser returns the user's entries, newest first, up to limit.
	SelectByUser(ctx context.Context, userID string, limit int) ([]*models.Entry, error)
}
