package calls

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"callmarket/internal/preview"
	"callmarket/pkg/logger"
)

var (
	ErrNotFound       = errors.New("calls: call not found")
	ErrForbidden      = errors.New("calls: not a participant of this call")
	ErrInvalidRequest = errors.New("calls: invalid request")
	ErrCallEnded      = errors.New("calls: call already ended")
)

// Settler finalizes a call's ledger entries once it has ended. The
// implementation must be idempotent per call.
type Settler interface {
	Settle(ctx context.Context, callID string) error
}

// Service runs the call state machine and the participant tracker.
type Service struct {
	repo     Repository
	previews *preview.Service
	settler  Settler
	clock    func() time.Time
}

func NewService(repo Repository, previews *preview.Service, settler Settler) *Service {
	return &Service{
		repo:     repo,
		previews: previews,
		settler:  settler,
		clock:    time.Now,
	}
}

// Start creates a call and lazily seeds the pair's preview lock. The lock is
// created unconsumed; whether this call gets the preview is decided later, at
// the moment both sides are first connected.
func (s *Service) Start(ctx context.Context, callerID, receiverID string) (Call, error) {
	if callerID == "" || receiverID == "" || callerID == receiverID {
		return Call{}, ErrInvalidRequest
	}
	if _, err := s.previews.EnsureLock(ctx, callerID, receiverID); err != nil {
		return Call{}, err
	}
	c := Call{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Status:     StatusCreated,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Call{}, err
	}
	return c, nil
}

// Get returns a call to one of its participants.
func (s *Service) Get(ctx context.Context, actorID, callID string) (Call, error) {
	c, err := s.authorized(ctx, actorID, callID)
	if err != nil {
		return Call{}, err
	}
	return c, nil
}

// MarkRinging moves a fresh call to ringing. Out-of-order events are ignored.
func (s *Service) MarkRinging(ctx context.Context, callID string) (Call, error) {
	c, _, err := s.repo.UpdateStatus(ctx, callID, StatusRinging, StatusCreated)
	return c, err
}

// Respond accepts or declines a call on behalf of one of its participants.
// Declining ends the call; accepting connects it.
func (s *Service) Respond(ctx context.Context, actorID, callID string, accept bool) (Call, error) {
	c, err := s.authorized(ctx, actorID, callID)
	if err != nil {
		return Call{}, err
	}
	if !accept {
		if c.Ended() {
			return c, nil
		}
		return s.end(ctx, c.ID, EndReasonDeclined)
	}
	if c.Ended() {
		return c, ErrCallEnded
	}
	c, _, err = s.repo.UpdateStatus(ctx, callID, StatusConnected, StatusCreated, StatusRinging)
	return c, err
}

// End terminates a call for one of its participants and settles it. Ending an
// already ended call is a no-op that still re-drives settlement, so a crash
// between ending and settling heals on retry.
func (s *Service) End(ctx context.Context, actorID, callID, reason string) (Call, error) {
	if _, err := s.authorized(ctx, actorID, callID); err != nil {
		return Call{}, err
	}
	if reason == "" {
		reason = EndReasonHangup
	}
	return s.end(ctx, callID, reason)
}

// EndFromProvider ends a call on a verified provider event. Provider events
// carry no user identity, so no participant check applies.
func (s *Service) EndFromProvider(ctx context.Context, callID, reason string) (Call, error) {
	_, ok, err := s.repo.Get(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if !ok {
		return Call{}, ErrNotFound
	}
	if reason == "" {
		reason = EndReasonHangup
	}
	return s.end(ctx, callID, reason)
}

// HandleParticipantConnected records a provider connection event for one side
// of the call. When it completes the pair it stamps the billable start, decides
// the preview grant, and moves the call to connected. Safe under redelivery.
func (s *Service) HandleParticipantConnected(ctx context.Context, callID string, role Role) (Call, error) {
	if !role.Valid() {
		return Call{}, ErrInvalidRequest
	}
	c, ok, err := s.repo.Get(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if !ok {
		return Call{}, ErrNotFound
	}
	if c.Ended() {
		// Late events after hangup carry no billable signal.
		return c, nil
	}

	if _, err := s.repo.EnsureParticipant(ctx, callID); err != nil {
		return Call{}, err
	}
	p, err := s.repo.SetConnected(ctx, callID, role, s.clock().UTC())
	if err != nil {
		return Call{}, err
	}

	if p.CallerConnectedAt != nil && p.ReceiverConnectedAt != nil && p.BothConnectedAt == nil {
		_, won, err := s.repo.SetBothConnected(ctx, callID, s.clock().UTC())
		if err != nil {
			return Call{}, err
		}
		if won {
			consumed, err := s.previews.ConsumeIfUnused(ctx, c.CallerID, c.ReceiverID, c.ID)
			if err != nil {
				return Call{}, err
			}
			if err := s.repo.SetPreviewApplied(ctx, callID, consumed); err != nil {
				return Call{}, err
			}
			logger.From(ctx).Info("call billable start",
				"call_id", callID, "preview_applied", consumed)
		}
	}

	c, _, err = s.repo.UpdateStatus(ctx, callID, StatusConnected, StatusCreated, StatusRinging)
	return c, err
}

// HandleParticipantDisconnected ends the call when either side drops.
func (s *Service) HandleParticipantDisconnected(ctx context.Context, callID string, role Role) (Call, error) {
	if !role.Valid() {
		return Call{}, ErrInvalidRequest
	}
	c, ok, err := s.repo.Get(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if !ok {
		return Call{}, ErrNotFound
	}
	if c.Ended() {
		return c, nil
	}
	return s.end(ctx, callID, EndReasonDisconnected)
}

func (s *Service) end(ctx context.Context, callID, reason string) (Call, error) {
	c, ended, err := s.repo.MarkEnded(ctx, callID, s.clock().UTC(), reason)
	if err != nil {
		return Call{}, err
	}
	if ended {
		logger.From(ctx).Info("call ended", "call_id", callID, "reason", reason)
	}
	if err := s.settler.Settle(ctx, callID); err != nil {
		return c, err
	}
	return c, nil
}

func (s *Service) authorized(ctx context.Context, actorID, callID string) (Call, error) {
	c, ok, err := s.repo.Get(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if !ok {
		return Call{}, ErrNotFound
	}
	if !c.IsParty(actorID) {
		return Call{}, ErrForbidden
	}
	return c, nil
}
