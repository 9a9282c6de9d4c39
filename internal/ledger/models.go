package ledger

import "time"

// Entry is an immutable append-only ledger row.
//
// Invariants:
// - Never updated or deleted after creation.
// - AmountTokens is a positive integer; direction is carried by Type.
// - IdempotencyKey is globally unique; a second append with the same key is a
//   no-op that returns the existing row.
// - A user's balance is sum(credits) - sum(debits) over their entries. No other
//   representation of balance is authoritative.
type Entry struct {
	ID     string    `json:"id" db:"id"`
	UserID string    `json:"user_id" db:"user_id"`
	Type   EntryType `json:"type" db:"type"`

	AmountTokens int64  `json:"amount_tokens" db:"amount_tokens"`
	Source       Source `json:"source" db:"source"`

	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	// Optional references.
	CallID              string `json:"call_id,omitempty" db:"call_id"`
	WithdrawalRequestID string `json:"withdrawal_request_id,omitempty" db:"withdrawal_request_id"`
	TxHash              string `json:"tx_hash,omitempty" db:"tx_hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
)

// Source categorizes why tokens moved. Keep stable; receipts and reports key on it.
type Source string

const (
	SourceCallBilling      Source = "call_billing"
	SourceCryptoDeposit    Source = "crypto_deposit"
	SourceWithdrawal       Source = "withdrawal"
	SourceAvailabilityPing Source = "availability_ping"
	SourceAdminMint        Source = "admin_mint"
	SourceAdminAdjustment  Source = "admin_adjustment"
)

func (s Source) Valid() bool {
	switch s {
	case SourceCallBilling, SourceCryptoDeposit, SourceWithdrawal,
		SourceAvailabilityPing, SourceAdminMint, SourceAdminAdjustment:
		return true
	default:
		return false
	}
}

// AppendResult is the tagged outcome of an append attempt.
// Created=false means the idempotency key already existed and Entry is the
// pre-existing row; callers must treat that as success.
type AppendResult struct {
	Entry   Entry
	Created bool
}

// SettlementResult reports the outcome of a capped debit/credit pair.
type SettlementResult struct {
	Debit  Entry
	Credit Entry

	DebitCreated  bool
	CreditCreated bool

	// ChargedTokens is the amount actually moved (post-cap). Zero when the payer
	// had no balance; in that case no rows were written.
	ChargedTokens int64

	// ShortfallTokens is requested minus charged, for operational visibility.
	ShortfallTokens int64
}
