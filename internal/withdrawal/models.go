package withdrawal

import "time"

// Request is a pending payout of tokens to a user's stored address.
//
// While pending, the requested amount is locked: it still shows in the ledger
// balance but is excluded from the amount available for new withdrawals. The
// ledger debit is posted only when the payout is actually sent; a failed
// payout releases the lock without ever touching the ledger.
type Request struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	AmountTokens  int64  `json:"amount_tokens" db:"amount_tokens"`
	PayoutAddress string `json:"payout_address" db:"payout_address"`

	Status Status `json:"status" db:"status"`

	// ClientKey deduplicates client retries of the same request. Optional.
	ClientKey string `json:"client_key,omitempty" db:"client_key"`

	// TxHash is set when the payout transaction is sent.
	TxHash string `json:"tx_hash,omitempty" db:"tx_hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

func (r Request) Pending() bool { return r.Status == StatusPending }
