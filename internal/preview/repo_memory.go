package preview

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory lock repository for tests.
// Enforces the same (caller_id, receiver_id) uniqueness as the schema.
type MemoryRepo struct {
	mu    sync.Mutex
	locks map[string]Lock // key: callerID|receiverID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{locks: map[string]Lock{}}
}

func pairKey(callerID, receiverID string) string {
	return callerID + "|" + receiverID
}

func (r *MemoryRepo) Ensure(ctx context.Context, l Lock) (Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := pairKey(l.CallerID, l.ReceiverID)
	if existing, ok := r.locks[k]; ok {
		return existing, nil
	}
	r.locks[k] = l
	return l, nil
}

func (r *MemoryRepo) Get(ctx context.Context, callerID, receiverID string) (Lock, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[pairKey(callerID, receiverID)]
	return l, ok, nil
}

func (r *MemoryRepo) Consume(ctx context.Context, callerID, receiverID, callID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := pairKey(callerID, receiverID)
	l, ok := r.locks[k]
	if !ok || l.Consumed {
		return false, nil
	}
	l.Consumed = true
	l.ConsumedAt = &at
	l.ConsumedByCallID = callID
	r.locks[k] = l
	return true, nil
}
