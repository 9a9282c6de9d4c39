package webhooks

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory event marker store for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	seen map[string]EventRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{seen: map[string]EventRecord{}}
}

func (r *MemoryRepo) Insert(ctx context.Context, rec EventRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[rec.EventKey]; ok {
		return false, nil
	}
	r.seen[rec.EventKey] = rec
	return true, nil
}
