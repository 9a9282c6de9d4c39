package calls

import "time"

// Call is the lifecycle record for one caller→receiver conversation.
//
// Invariants:
// - Status only moves forward; ended is terminal.
// - Settlement runs at most once in effect per call, guarded by ledger
//   idempotency keys derived from the call id (internal/settlement).
// - Only the call's caller or receiver may transition it.
//
// Money invariant reminder: charges reference call_id in the ledger; no token
// state is stored here.
type Call struct {
	ID         string `json:"id" db:"id"`
	CallerID   string `json:"caller_id" db:"caller_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`

	Status Status `json:"status" db:"status"`

	// PreviewApplied is decided exactly once, at the moment both sides are
	// first connected, from the pair's preview lock.
	PreviewApplied bool `json:"preview_applied" db:"preview_applied"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	EndReason string     `json:"end_reason,omitempty" db:"end_reason"`
}

type Status string

const (
	StatusCreated   Status = "created"
	StatusRinging   Status = "ringing"
	StatusConnected Status = "connected"
	StatusEnded     Status = "ended"
)

// End reasons. Free-form values from providers are normalized to these.
const (
	EndReasonHangup       = "hangup"
	EndReasonDeclined     = "declined"
	EndReasonDisconnected = "disconnected"
)

// Participant tracks per-side connection timestamps for a call.
//
// Each timestamp is set at most once; BothConnectedAt is set exactly once, the
// first moment both sides are non-nil. Billable time starts at BothConnectedAt.
type Participant struct {
	CallID string `json:"call_id" db:"call_id"`

	CallerConnectedAt   *time.Time `json:"caller_connected_at,omitempty" db:"caller_connected_at"`
	ReceiverConnectedAt *time.Time `json:"receiver_connected_at,omitempty" db:"receiver_connected_at"`
	BothConnectedAt     *time.Time `json:"both_connected_at,omitempty" db:"both_connected_at"`
}

// Role identifies which side of the call a connection event belongs to.
type Role string

const (
	RoleCaller   Role = "caller"
	RoleReceiver Role = "receiver"
)

func (r Role) Valid() bool {
	return r == RoleCaller || r == RoleReceiver
}

// IsParty reports whether userID is one of the two participants.
func (c Call) IsParty(userID string) bool {
	return userID != "" && (userID == c.CallerID || userID == c.ReceiverID)
}

func (c Call) Ended() bool { return c.Status == StatusEnded }
