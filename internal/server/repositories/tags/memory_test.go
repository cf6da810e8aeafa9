package tags

import (
	"context"
	"errors"
	"testing"

	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/shared"
)

func memTagID(t *testing.T, b byte) phrase.Identifier {
	t.Helper()
	raw := make([]byte, phrase.IdentifierSize)
	for i := range raw {
		raw[i] = b
	}
	id, err := phrase.IdentifierFromBytes(raw)
	if err != nil {
		t.Fatalf("IdentifierFromBytes error: %v", err)
	}
	return id
}

func TestMemory_CreateGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	id := memTagID(t, 1)

	tag := &models.SecretTag{UserID: "alice", TagID: id, Verifier: []byte("v"), WrappedKey: []byte("w")}
	if err := repo.Create(ctx, tag); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := repo.Create(ctx, tag); !errors.Is(err, shared.ErrorAlreadyExists) {
		t.Fatalf("duplicate create: got %v", err)
	}

	got, err := repo.Get(ctx, "alice", id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.CreatedAt.IsZero() {
		t.Errorf("CreatedAt not set")
	}

	// other user must not see the tag
	if _, err := repo.Get(ctx, "bob", id); !errors.Is(err, shared.ErrorNotFound) {
		t.Errorf("cross-user get: got %v", err)
	}
}

func TestMemory_RevokeHidesTag(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	id := memTagID(t, 2)

	tag := &models.SecretTag{UserID: "alice", TagID: id, Verifier: []byte("v"), WrappedKey: []byte("w")}
	if err := repo.Create(ctx, tag); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := repo.Revoke(ctx, "alice", id); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if _, err := repo.Get(ctx, "alice", id); !errors.Is(err, shared.ErrorNotFound) {
		t.Errorf("revoked tag still visible: %v", err)
	}
}

func TestMemory_UpdateAndDelete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	id := memTagID(t, 3)

	tag := &models.SecretTag{UserID: "alice", TagID: id, Verifier: []byte("v"), WrappedKey: []byte("w")}
	if err := repo.Create(ctx, tag); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if err := repo.UpdateWrappedKey(ctx, "alice", id, []byte("w2")); err != nil {
		t.Fatalf("UpdateWrappedKey error: %v", err)
	}
	if err := repo.UpdateVerifier(ctx, "alice", id, []byte("v2")); err != nil {
		t.Fatalf("UpdateVerifier error: %v", err)
	}

	got, err := repo.Get(ctx, "alice", id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(got.WrappedKey) != "w2" || string(got.Verifier) != "v2" {
		t.Errorf("updates not applied: %+v", got)
	}

	if err := repo.Delete(ctx, "alice", id); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := repo.Delete(ctx, "alice", id); !errors.Is(err, shared.ErrorNotFound) {
		t.Errorf("double delete: got %v", err)
	}
}
