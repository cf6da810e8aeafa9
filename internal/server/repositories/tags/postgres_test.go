package tags

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/shared"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func testTagID(t *testing.T) phrase.Identifier {
	t.Helper()
	id, err := phrase.IdentifierFromBytes([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("IdentifierFromBytes error: %v", err)
	}
	return id
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := testTagID(t)
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+secret_tags`).
		WithArgs("alice", id.Bytes(), []byte("verifier"), []byte("wrapped")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tag := &models.SecretTag{UserID: "alice", TagID: id, Verifier: []byte("verifier"), WrappedKey: []byte("wrapped")}
	if err := repo.Create(context.Background(), tag); err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestCreate_Conflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := testTagID(t)
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+secret_tags`).
		WithArgs("alice", id.Bytes(), []byte("verifier"), []byte("wrapped")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tag := &models.SecretTag{UserID: "alice", TagID: id, Verifier: []byte("verifier"), WrappedKey: []byte("wrapped")}
	if err := repo.Create(context.Background(), tag); !errors.Is(err, shared.ErrorAlreadyExists) {
		t.Fatalf("got %v, want ErrorAlreadyExists", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := testTagID(t)
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+secret_tags`).
		WillReturnError(errors.New("db down"))

	tag := &models.SecretTag{UserID: "alice", TagID: id, Verifier: []byte("v"), WrappedKey: []byte("w")}
	if err := repo.Create(context.Background(), tag); !errors.Is(err, shared.ErrStorageUnavailable) {
		t.Fatalf("got %v, want ErrStorageUnavailable", err)
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := testTagID(t)
	rows := sqlmock.NewRows([]string{"user_id", "tag_id", "verifier", "wrapped_key", "created_at", "revoked"}).
		AddRow("alice", id.Bytes(), []byte("verifier"), []byte("wrapped"), time.Now(), false)
	mock.ExpectQuery(`(?s)SELECT\s+user_id,\s*tag_id,\s*verifier,\s*wrapped_key,\s*created_at,\s*revoked\s+FROM\s+secret_tags`).
		WithArgs("alice", id.Bytes()).
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "alice", id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.UserID != "alice" || got.TagID != id {
		t.Fatalf("unexpected tag: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := testTagID(t)
	mock.ExpectQuery(`(?s)SELECT\s+user_id`).
		WithArgs("ghost", id.Bytes()).
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "ghost", id); !errors.Is(err, shared.ErrorNotFound) {
		t.Fatalf("got %v, want ErrorNotFound", err)
	}
}

func TestRevoke_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := testTagID(t)
	mock.ExpectExec(`(?s)UPDATE\s+secret_tags\s+SET\s+revoked`).
		WithArgs("alice", id.Bytes()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Revoke(context.Background(), "alice", id); !errors.Is(err, shared.ErrorNotFound) {
		t.Fatalf("got %v, want ErrorNotFound", err)
	}
}

func TestUpdateWrappedKey_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := testTagID(t)
	mock.ExpectExec(`(?s)UPDATE\s+secret_tags\s+SET\s+wrapped_key`).
		WithArgs("alice", id.Bytes(), []byte("new")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateWrappedKey(context.Background(), "alice", id, []byte("new")); err != nil {
		t.Fatalf("UpdateWrappedKey error: %v", err)
	}
}
