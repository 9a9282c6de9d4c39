package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit capture is best-effort; do not block settlement or withdrawals on
//   audit failures.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// Target identifiers (optional, depending on the event type).
	UserID              string `json:"user_id,omitempty" db:"user_id"`
	CallID              string `json:"call_id,omitempty" db:"call_id"`
	WithdrawalRequestID string `json:"withdrawal_request_id,omitempty" db:"withdrawal_request_id"`
	LedgerEntryID       string `json:"ledger_entry_id,omitempty" db:"ledger_entry_id"`

	AmountTokens int64 `json:"amount_tokens,omitempty" db:"amount_tokens"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeSettlementShortfall EventType = "settlement_shortfall"
	EventTypeCallReversal        EventType = "call_reversal"
	EventTypeAdminLedgerAction   EventType = "admin_ledger_action"
	EventTypeWithdrawalRequested EventType = "withdrawal_requested"
)
