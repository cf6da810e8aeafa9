package tags

import (
	"context"
	"sync"
	"time"

	"github.com/ekurs/phrasevault/internal/server/models"
	"github.com/ekurs/phrasevault/internal/server/phrase"
	"github.com/ekurs/phrasevault/internal/shared"
)

// Compile-time interface check
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps tags in a process-local map. Used by tests and by
// embedded setups that do not need durable storage.
type MemoryRepository struct {
	mu   sync.RWMutex
	tags map[string]*models.SecretTag
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tags: make(map[string]*models.SecretTag)}
}

func key(userID string, tagID phrase.Identifier) string {
	return userID + "/" + tagID.String()
}

func (r *MemoryRepository) Create(ctx context.Context, tag *models.SecretTag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(tag.UserID, tag.TagID)
	if existing, ok := r.tags[k]; ok && !existing.Revoked {
		return shared.ErrorAlreadyExists
	}

	stored := *tag
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.tags[k] = &stored
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, userID string, tagID phrase.Identifier) (*models.SecretTag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tag, ok := r.tags[key(userID, tagID)]
	if !ok || tag.Revoked {
		return nil, shared.ErrorNotFound
	}
	cp := *tag
	return &cp, nil
}

func (r *MemoryRepository) UpdateVerifier(ctx context.Context, userID string, tagID phrase.Identifier, verifier []byte) error {
	return r.update(userID, tagID, func(t *models.SecretTag) { t.Verifier = verifier })
}

func (r *MemoryRepository) UpdateWrappedKey(ctx context.Context, userID string, tagID phrase.Identifier, wrapped []byte) error {
	return r.update(userID, tagID, func(t *models.SecretTag) { t.WrappedKey = wrapped })
}

func (r *MemoryRepository) Revoke(ctx context.Context, userID string, tagID phrase.Identifier) error {
	return r.update(userID, tagID, func(t *models.SecretTag) { t.Revoked = true })
}

func (r *MemoryRepository) Delete(ctx context.Context, userID string, tagID phrase.Identifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(userID, tagID)
	if _, ok := r.tags[k]; !ok {
		return shared.ErrorNotFound
	}
	delete(r.tags, k)
	return nil
}

func (r *MemoryRepository) update(userID string, tagID phrase.Identifier, fn func(*models.SecretTag)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag, ok := r.tags[key(userID, tagID)]
	if !ok || tag.Revoked {
		return shared.ErrorNotFound
	}
	fn(tag)
	return nil
}
