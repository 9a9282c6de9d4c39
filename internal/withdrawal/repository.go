package withdrawal

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientAvailable is returned by Create when balance minus
	// pending locks cannot cover the request, checked atomically with the
	// insert.
	ErrInsufficientAvailable = errors.New("withdrawal: insufficient available balance")

	ErrNotFound = errors.New("withdrawal: request not found")
)

// Repository persists withdrawal requests.
type Repository interface {
	// Create inserts a pending request after re-checking availability
	// (ledger balance minus locked tokens) in the same critical section.
	// A client-key collision returns the existing request with created=false.
	Create(ctx context.Context, r Request) (Request, bool, error)

	Get(ctx context.Context, id string) (Request, bool, error)

	// FindByClientKey looks up a user's prior request by dedup key.
	FindByClientKey(ctx context.Context, userID, clientKey string) (Request, bool, error)

	// LockedTokens sums the user's pending request amounts.
	LockedTokens(ctx context.Context, userID string) (int64, error)

	// SetStatus transitions a pending request to sent or failed. Returns the
	// fresh row and whether this call performed the transition.
	SetStatus(ctx context.Context, id string, status Status, txHash string, at time.Time) (Request, bool, error)

	ListByUser(ctx context.Context, userID string) ([]Request, error)
}
