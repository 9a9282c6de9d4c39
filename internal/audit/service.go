package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Audit is internal-only; callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogSettlementShortfall records a capped charge for operational follow-up.
func (s *Service) LogSettlementShortfall(ctx context.Context, callID, payerUserID string, shortfallTokens int64) error {
	return s.Append(ctx, Event{
		Type:         EventTypeSettlementShortfall,
		UserID:       payerUserID,
		CallID:       callID,
		AmountTokens: shortfallTokens,
		Message:      "charge capped at available balance",
	})
}

// LogCallReversal records an admin-initiated settlement reversal.
func (s *Service) LogCallReversal(ctx context.Context, actorUserID, actorRole, callID string, amountTokens int64, reason string) error {
	return s.Append(ctx, Event{
		Type:         EventTypeCallReversal,
		ActorUserID:  actorUserID,
		ActorRole:    actorRole,
		CallID:       callID,
		AmountTokens: amountTokens,
		Message:      reason,
	})
}

// LogAdminLedgerAction records a privileged mint/adjustment.
func (s *Service) LogAdminLedgerAction(ctx context.Context, actorUserID, actorRole, userID, ledgerEntryID, message string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeAdminLedgerAction,
		ActorUserID:   actorUserID,
		ActorRole:     actorRole,
		UserID:        userID,
		LedgerEntryID: ledgerEntryID,
		Message:       message,
	})
}

// LogWithdrawalRequested records an accepted withdrawal request.
func (s *Service) LogWithdrawalRequested(ctx context.Context, userID, requestID string, amountTokens int64) error {
	return s.Append(ctx, Event{
		Type:                EventTypeWithdrawalRequested,
		UserID:              userID,
		WithdrawalRequestID: requestID,
		AmountTokens:        amountTokens,
		Message:             "withdrawal requested; tokens locked",
	})
}
