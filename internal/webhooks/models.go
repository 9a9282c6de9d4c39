package webhooks

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventRecord marks a provider event as processed. Insertion doubles as the
// deduplication gate: redeliveries collide on event_key and are dropped.
type EventRecord struct {
	ID         string    `json:"id" db:"id"`
	EventKey   string    `json:"event_key" db:"event_key"`
	EventType  string    `json:"event_type" db:"event_type"`
	CallID     string    `json:"call_id,omitempty" db:"call_id"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

// Provider event names.
const (
	EventCallRinging             = "call.ringing"
	EventParticipantConnected    = "participant.connected"
	EventParticipantDisconnected = "participant.disconnected"
	EventCallEnded               = "call.ended"
	EventDepositConfirmed        = "deposit.confirmed"
)

// payload is the provider's wire format. Fields are optional per event type.
type payload struct {
	EventID string `json:"event_id"`
	Event   string `json:"event"`

	CallID string `json:"call_id,omitempty"`
	Role   string `json:"role,omitempty"`
	Reason string `json:"reason,omitempty"`

	// deposit.confirmed only.
	UserID       string `json:"user_id,omitempty"`
	AmountTokens int64  `json:"amount_tokens,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
}

// EventKey derives the dedup key for a delivery. Providers that send an event
// id get a stable key across redeliveries; otherwise the raw body is hashed,
// so byte-identical redeliveries still dedupe.
func EventKey(eventID string, raw []byte) string {
	if eventID != "" {
		return "evt_" + eventID
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
