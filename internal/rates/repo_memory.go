package rates

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory rate repository for tests and early development.
type MemoryRepo struct {
	mu    sync.Mutex
	rates []ReceiverRate
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Create(ctx context.Context, rate ReceiverRate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates = append(r.rates, rate)
	return nil
}

func (r *MemoryRepo) FindEffective(ctx context.Context, receiverID string, at time.Time) (ReceiverRate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best ReceiverRate
	found := false
	for _, rate := range r.rates {
		if rate.ReceiverID != receiverID || !rate.EffectiveAt(at) {
			continue
		}
		// Latest effective_from wins.
		if !found || rate.EffectiveFrom.After(best.EffectiveFrom) {
			best = rate
			found = true
		}
	}
	return best, found, nil
}
