package ledger

import "context"

// Store is the persistence contract for the ledger.
//
// It MUST be append-only: no Update, no Delete. Corrections are reversal entries.
//
// Idempotency-key uniqueness is enforced at the storage layer (unique
// constraint), not by application locking, because it must survive process
// crashes and concurrent requests from different instances.
type Store interface {
	// Append inserts an entry. If the idempotency key already exists, the
	// existing row is returned with Created=false. No error for duplicates.
	Append(ctx context.Context, e Entry) (AppendResult, error)

	// AppendSettlement posts a debit/credit pair in one atomic unit of work.
	// The debit is capped at the payer's derived balance computed inside the
	// same transaction; the credit mirrors the capped amount. Re-entrant calls
	// with the same keys are no-ops returning the existing rows.
	AppendSettlement(ctx context.Context, debit, credit Entry) (SettlementResult, error)

	// BalanceOf derives the signed sum over all entries for a user.
	BalanceOf(ctx context.Context, userID string) (int64, error)

	// FindByKey looks up an entry by idempotency key.
	FindByKey(ctx context.Context, idempotencyKey string) (Entry, bool, error)

	// ListByCall returns all entries referencing a call, chronologically.
	ListByCall(ctx context.Context, callID string) ([]Entry, error)

	// ListByUser returns all entries for a user, chronologically.
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
}
