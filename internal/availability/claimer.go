package availability

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"callmarket/pkg/utils"
)

// WindowClaimer gates side effects to once per window key. The claim is a
// fast path only; the ledger's idempotency key is what actually prevents a
// double credit.
type WindowClaimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisClaimer claims windows via SET NX with a TTL bounded to the window.
type RedisClaimer struct {
	rdb *redis.Client
}

func NewRedisClaimer(rdb *redis.Client) *RedisClaimer { return &RedisClaimer{rdb: rdb} }

func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return utils.ClaimWindow(ctx, c.rdb, key, ttl)
}

func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	return utils.ReleaseWindow(ctx, c.rdb, key)
}

// MemoryClaimer is an in-process claimer for tests.
type MemoryClaimer struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{claimed: map[string]bool{}}
}

func (c *MemoryClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed[key] {
		return false, nil
	}
	c.claimed[key] = true
	return true, nil
}

func (c *MemoryClaimer) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimed, key)
	return nil
}
