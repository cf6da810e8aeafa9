package entries

import (
	"context"
	"fmt"

	"github.com/ekurs/phrasevault/internal/dbx"
	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/shared"
)

// PostgresRepository implements entry storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, entry *models.Entry) error {
	query := `
		INSERT INTO journal_entries (id, user_id, content)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Content); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *PostgresRepository) SelectByUser(ctx context.Context, userID string, limit int) ([]*models.Entry, error) {
	query := `
		SELECT id, user_id, content, created_at FROM journal_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		var item models.Entry
		if err := rows.Scan(&item.ID, &item.UserID, &item.Content, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
