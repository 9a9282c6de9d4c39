package receipts

import "time"

// Receipt is a read-only projection of a call's outcome for one of its
// participants. It is derived entirely from the call record and the ledger;
// projecting it any number of times changes nothing.
type Receipt struct {
	CallID     string `json:"call_id"`
	CallerID   string `json:"caller_id"`
	ReceiverID string `json:"receiver_id"`

	Status    string     `json:"status"`
	EndReason string     `json:"end_reason,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Duration is the both-connected span, formatted mm:ss (hh:mm:ss past an
	// hour). Zero for calls that never fully connected.
	Duration        string `json:"duration"`
	DurationSeconds int64  `json:"duration_seconds"`

	PreviewApplied bool  `json:"preview_applied"`
	PreviewSeconds int64 `json:"preview_seconds"`

	// Caller's side: gross charge, refunds, and the net.
	ChargedTokens    int64  `json:"charged_tokens"`
	RefundedTokens   int64  `json:"refunded_tokens"`
	NetChargedTokens int64  `json:"net_charged_tokens"`
	ChargedUSD       string `json:"charged_usd"`

	// Receiver's side: net earnings after any reversal.
	EarnedTokens int64  `json:"earned_tokens"`
	EarnedUSD    string `json:"earned_usd"`
}
