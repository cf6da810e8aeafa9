package entries

import (
	"context"
	"sync"
	"time"

	"github.com/ekurs/phrasevault/internal/server/models"
)

// Compile-time interface check
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps entries in process memory; used by tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*models.Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, entry *models.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *entry
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *MemoryRepository) SelectByUser(ctx context.Context, userID string, limit int) ([]*models.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Entry
	for i := len(r.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if r.entries[i].UserID == userID {
			cp := *r.entries[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}
