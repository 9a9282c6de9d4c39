package preview

import "time"

// Lock represents one free preview window for a caller→receiver pair.
//
// Keying is directional: the preview belongs to the paying side of the
// relationship, so B calling A gets its own lock even if A has already
// called B.
//
// Locks are created lazily on first contact and consumed (marked used, never
// deleted) the first time a call between the pair reaches both-connected.
// Keeping consumed rows preserves the audit trail.
type Lock struct {
	ID         string `json:"id" db:"id"`
	CallerID   string `json:"caller_id" db:"caller_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`

	Consumed   bool       `json:"consumed" db:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty" db:"consumed_at"`

	// ConsumedByCallID records which call used the preview.
	ConsumedByCallID string `json:"consumed_by_call_id,omitempty" db:"consumed_by_call_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
