package withdrawal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// BalanceSource derives a user's ledger balance. Satisfied by both the ledger
// service and its stores.
type BalanceSource interface {
	BalanceOf(ctx context.Context, userID string) (int64, error)
}

// MemoryRepo is an in-memory request store for tests. Availability is
// re-checked under the repo mutex, mirroring the advisory lock the Postgres
// implementation takes.
type MemoryRepo struct {
	mu       sync.Mutex
	balances BalanceSource
	byID     map[string]Request
	byKey    map[string]string // userID|clientKey -> request id
}

func NewMemoryRepo(balances BalanceSource) *MemoryRepo {
	return &MemoryRepo{
		balances: balances,
		byID:     map[string]Request{},
		byKey:    map[string]string{},
	}
}

func clientKeyIndex(userID, clientKey string) string {
	return userID + "|" + clientKey
}

func (r *MemoryRepo) Create(ctx context.Context, req Request) (Request, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.ClientKey != "" {
		if id, ok := r.byKey[clientKeyIndex(req.UserID, req.ClientKey)]; ok {
			return r.byID[id], false, nil
		}
	}

	balance, err := r.balances.BalanceOf(ctx, req.UserID)
	if err != nil {
		return Request{}, false, err
	}
	if balance-r.lockedLocked(req.UserID) < req.AmountTokens {
		return Request{}, false, ErrInsufficientAvailable
	}

	r.byID[req.ID] = req
	if req.ClientKey != "" {
		r.byKey[clientKeyIndex(req.UserID, req.ClientKey)] = req.ID
	}
	return req, true, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Request, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	return req, ok, nil
}

func (r *MemoryRepo) FindByClientKey(ctx context.Context, userID, clientKey string) (Request, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[clientKeyIndex(userID, clientKey)]
	if !ok {
		return Request{}, false, nil
	}
	req, ok := r.byID[id]
	return req, ok, nil
}

func (r *MemoryRepo) LockedTokens(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lockedLocked(userID), nil
}

func (r *MemoryRepo) lockedLocked(userID string) int64 {
	var sum int64
	for _, req := range r.byID {
		if req.UserID == userID && req.Pending() {
			sum += req.AmountTokens
		}
	}
	return sum
}

func (r *MemoryRepo) SetStatus(ctx context.Context, id string, status Status, txHash string, at time.Time) (Request, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	if !ok {
		return Request{}, false, ErrNotFound
	}
	if !req.Pending() {
		return req, false, nil
	}
	req.Status = status
	req.TxHash = txHash
	req.UpdatedAt = at
	r.byID[id] = req
	return req, true, nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Request
	for _, req := range r.byID {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
