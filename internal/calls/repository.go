package calls

import (
	"context"
	"time"
)

// Repository persists calls and their participant trackers.
//
// The compare-and-set methods (UpdateStatus, MarkEnded, SetBothConnected)
// return whether this caller performed the transition, so services can run
// one-shot side effects exactly once under webhook redelivery.
type Repository interface {
	Create(ctx context.Context, c Call) error
	Get(ctx context.Context, id string) (Call, bool, error)

	// UpdateStatus moves the call to the target status if its current status
	// is one of from. Returns the fresh row and whether the transition ran.
	UpdateStatus(ctx context.Context, id string, to Status, from ...Status) (Call, bool, error)

	// MarkEnded ends the call once. Later calls leave the original ended_at
	// and reason untouched and report false.
	MarkEnded(ctx context.Context, id string, at time.Time, reason string) (Call, bool, error)

	SetPreviewApplied(ctx context.Context, id string, applied bool) error

	// EnsureParticipant creates the tracker row for a call if missing.
	EnsureParticipant(ctx context.Context, callID string) (Participant, error)

	// SetConnected stamps one side's first connection time. Re-deliveries
	// keep the earliest timestamp.
	SetConnected(ctx context.Context, callID string, role Role, at time.Time) (Participant, error)

	// SetBothConnected stamps the billable-start moment once.
	SetBothConnected(ctx context.Context, callID string, at time.Time) (Participant, bool, error)

	GetParticipant(ctx context.Context, callID string) (Participant, bool, error)
}
