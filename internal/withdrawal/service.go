package withdrawal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"callmarket/internal/audit"
	"callmarket/internal/ledger"
	"callmarket/internal/users"
	"callmarket/pkg/logger"
)

var (
	ErrPayoutsDisabled = errors.New("withdrawal: payouts are disabled")
	ErrUserFrozen      = errors.New("withdrawal: account is frozen")
	ErrNoPayoutAddress = errors.New("withdrawal: no payout address on file")
	ErrBelowMinimum    = errors.New("withdrawal: amount below minimum")
	ErrInvalidRequest  = errors.New("withdrawal: invalid request")
	ErrNotPending      = errors.New("withdrawal: request is not pending")
)

// Config carries the billing policy knobs the coordinator enforces.
type Config struct {
	MinTokens int64
	Disabled  bool
}

// Service coordinates withdrawal requests against the ledger.
//
// Requesting locks tokens without moving them. The ledger debit is posted
// exactly once, when the payout is marked sent; a failed payout releases the
// lock and the ledger never sees it.
type Service struct {
	repo    Repository
	ledgers *ledger.Service
	users   *users.Service
	audits  *audit.Service
	cfg     Config
	clock   func() time.Time
}

func NewService(repo Repository, ledgerSvc *ledger.Service, userSvc *users.Service, auditSvc *audit.Service, cfg Config) *Service {
	return &Service{
		repo:    repo,
		ledgers: ledgerSvc,
		users:   userSvc,
		audits:  auditSvc,
		cfg:     cfg,
		clock:   time.Now,
	}
}

// Request accepts a withdrawal for the user's full stored payout address.
// clientKey is an optional dedup key; retries with the same key return the
// original request as success.
func (s *Service) Request(ctx context.Context, userID string, amountTokens int64, clientKey string) (Request, error) {
	if userID == "" || amountTokens <= 0 {
		return Request{}, ErrInvalidRequest
	}
	if s.cfg.Disabled {
		return Request{}, ErrPayoutsDisabled
	}
	if amountTokens < s.cfg.MinTokens {
		return Request{}, ErrBelowMinimum
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return Request{}, err
	}
	if u.Frozen {
		return Request{}, ErrUserFrozen
	}
	if !users.ValidPayoutAddress(u.PayoutAddress) {
		return Request{}, ErrNoPayoutAddress
	}

	if clientKey != "" {
		if existing, ok, err := s.repo.FindByClientKey(ctx, userID, clientKey); err != nil {
			return Request{}, err
		} else if ok {
			return existing, nil
		}
	}

	now := s.clock().UTC()
	req, created, err := s.repo.Create(ctx, Request{
		ID:            uuid.NewString(),
		UserID:        userID,
		AmountTokens:  amountTokens,
		PayoutAddress: u.PayoutAddress,
		Status:        StatusPending,
		ClientKey:     clientKey,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Request{}, err
	}
	if created {
		logger.From(ctx).Info("withdrawal requested",
			"user_id", userID, "request_id", req.ID, "amount_tokens", amountTokens)
		if s.audits != nil {
			// Best-effort; the request row is the source of truth.
			_ = s.audits.LogWithdrawalRequested(ctx, userID, req.ID, amountTokens)
		}
	}
	return req, nil
}

// Available returns the user's spendable balance: ledger balance minus tokens
// locked by pending withdrawals.
func (s *Service) Available(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidRequest
	}
	balance, err := s.ledgers.BalanceOf(ctx, userID)
	if err != nil {
		return 0, err
	}
	locked, err := s.repo.LockedTokens(ctx, userID)
	if err != nil {
		return 0, err
	}
	return balance - locked, nil
}

// MarkSent finalizes a payout: the pending request becomes sent and the
// ledger debit is posted, keyed on the request id so replays converge.
func (s *Service) MarkSent(ctx context.Context, requestID, txHash string) (Request, error) {
	if requestID == "" || txHash == "" {
		return Request{}, ErrInvalidRequest
	}
	req, ok, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if !ok {
		return Request{}, ErrNotFound
	}
	if req.Status == StatusSent {
		return req, nil
	}
	if !req.Pending() {
		return Request{}, ErrNotPending
	}

	req, transitioned, err := s.repo.SetStatus(ctx, requestID, StatusSent, txHash, s.clock().UTC())
	if err != nil {
		return Request{}, err
	}
	if !transitioned && req.Status != StatusSent {
		return Request{}, ErrNotPending
	}

	if _, err := s.ledgers.Append(ctx, ledger.Entry{
		UserID:              req.UserID,
		Type:                ledger.EntryTypeDebit,
		AmountTokens:        req.AmountTokens,
		Source:              ledger.SourceWithdrawal,
		IdempotencyKey:      "withdrawal:" + req.ID,
		WithdrawalRequestID: req.ID,
		TxHash:              txHash,
	}); err != nil {
		return Request{}, err
	}
	return req, nil
}

// MarkFailed releases a pending request's lock. No ledger entry is written.
func (s *Service) MarkFailed(ctx context.Context, requestID string) (Request, error) {
	if requestID == "" {
		return Request{}, ErrInvalidRequest
	}
	req, ok, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if !ok {
		return Request{}, ErrNotFound
	}
	if req.Status == StatusFailed {
		return req, nil
	}
	if !req.Pending() {
		return Request{}, ErrNotPending
	}
	req, _, err = s.repo.SetStatus(ctx, requestID, StatusFailed, "", s.clock().UTC())
	return req, err
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Request, error) {
	if userID == "" {
		return nil, ErrInvalidRequest
	}
	return s.repo.ListByUser(ctx, userID)
}
