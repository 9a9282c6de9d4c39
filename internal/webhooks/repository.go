package webhooks

import "context"

// Repository persists processed-event markers.
type Repository interface {
	// Insert records an event marker. Returns false without error when the
	// event_key already exists.
	Insert(ctx context.Context, rec EventRecord) (bool, error)
}
