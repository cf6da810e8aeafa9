package tags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ekurs/phrasevault/internal/dbx"
	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/shared"
)

// PostgresRepository implements tag storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, tag *models.SecretTag) error {
	query := `
		INSERT INTO secret_tags (user_id, tag_id, verifier, wrapped_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, tag_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, tag.UserID, tag.TagID.Bytes(), tag.Verifier, tag.WrappedKey)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}
	if n == 0 {
		return shared.ErrorAlreadyExists
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string, tagID phrase.Identifier) (*models.SecretTag, error) {
	query := `
		SELECT user_id, tag_id, verifier, wrapped_key, created_at, revoked
		FROM secret_tags
		WHERE user_id = $1 AND tag_id = $2 AND NOT revoked
	`
	tag := &models.SecretTag{}
	var rawID []byte
	err := r.db.QueryRowContext(ctx, query, userID, tagID.Bytes()).Scan(
		&tag.UserID, &rawID, &tag.Verifier, &tag.WrappedKey, &tag.CreatedAt, &tag.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}

	tag.TagID, err = phrase.IdentifierFromBytes(rawID)
	if err != nil {
		return nil, fmt.Errorf("corrupt tag identifier: %w", err)
	}
	return tag, nil
}

func (r *PostgresRepository) UpdateVerifier(ctx context.Context, userID string, tagID phrase.Identifier, verifier []byte) error {
	query := `
		UPDATE secret_tags SET verifier = $3
		WHERE user_id = $1 AND tag_id = $2 AND NOT revoked
	`
	return r.exec(ctx, query, userID, tagID.Bytes(), verifier)
}

func (r *PostgresRepository) UpdateWrappedKey(ctx context.Context, userID string, tagID phrase.Identifier, wrapped []byte) error {
	query := `
		UPDATE secret_tags SET wrapped_key = $3
		WHERE user_id = $1 AND tag_id = $2 AND NOT revoked
	`
	return r.exec(ctx, query, userID, tagID.Bytes(), wrapped)
}

func (r *PostgresRepository) Revoke(ctx context.Context, userID string, tagID phrase.Identifier) error {
	query := `
		UPDATE secret_tags SET revoked = TRUE
		WHERE user_id = $1 AND tag_id = $2 AND NOT revoked
	`
	return r.exec(ctx, query, userID, tagID.Bytes())
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string, tagID phrase.Identifier) error {
	query := `DELETE FROM secret_tags WHERE user_id = $1 AND tag_id = $2`
	return r.exec(ctx, query, userID, tagID.Bytes())
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}
	if n == 0 {
		return shared.ErrorNotFound
	}
	return nil
}
