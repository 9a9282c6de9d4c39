package preview

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository abstracts preview lock persistence.
//
// UNIQUE (caller_id, receiver_id) is assumed; Ensure must be safe under
// concurrent first contact.
type Repository interface {
	// Ensure creates an unconsumed lock if none exists and returns the row.
	Ensure(ctx context.Context, l Lock) (Lock, error)

	// Get returns the lock for a pair if present.
	Get(ctx context.Context, callerID, receiverID string) (Lock, bool, error)

	// Consume marks an unconsumed lock used. Returns true only for the call
	// that actually flipped it; false if absent or already consumed.
	Consume(ctx context.Context, callerID, receiverID, callID string, at time.Time) (bool, error)
}

// Service manages the one-time preview grant per caller→receiver pair.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidRequest = errors.New("preview: invalid request")

// EnsureLock lazily creates the pair's preview lock on first contact.
func (s *Service) EnsureLock(ctx context.Context, callerID, receiverID string) (Lock, error) {
	if callerID == "" || receiverID == "" || callerID == receiverID {
		return Lock{}, ErrInvalidRequest
	}
	return s.repo.Ensure(ctx, Lock{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		CreatedAt:  s.clock().UTC(),
	})
}

// ConsumeIfUnused grants the preview exactly once per pair. The first call to
// reach both-connected wins; everyone else sees false.
func (s *Service) ConsumeIfUnused(ctx context.Context, callerID, receiverID, callID string) (bool, error) {
	if callerID == "" || receiverID == "" || callID == "" {
		return false, ErrInvalidRequest
	}
	return s.repo.Consume(ctx, callerID, receiverID, callID, s.clock().UTC())
}
