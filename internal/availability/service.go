package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callmarket/internal/ledger"
	"callmarket/pkg/logger"
)

var ErrInvalidRequest = errors.New("availability: invalid request")

// Result reports what a ping did.
type Result struct {
	// Credited is true when this ping earned the window's credit. False
	// means the window was already credited.
	Credited    bool      `json:"credited"`
	WindowStart time.Time `json:"window_start"`

	CreditTokens int64 `json:"credit_tokens"`
}

// Service credits receivers for staying available, at most once per window.
//
// The window claim in Redis is a cheap first gate; the ledger append uses the
// same window-derived idempotency key, so even if Redis forgets a claim the
// credit still lands at most once.
type Service struct {
	claimer WindowClaimer
	ledgers *ledger.Service

	window       time.Duration
	creditTokens int64
	clock        func() time.Time
}

func NewService(claimer WindowClaimer, ledgerSvc *ledger.Service, window time.Duration, creditTokens int64) *Service {
	return &Service{
		claimer:      claimer,
		ledgers:      ledgerSvc,
		window:       window,
		creditTokens: creditTokens,
		clock:        time.Now,
	}
}

// Ping records that a receiver is available right now.
func (s *Service) Ping(ctx context.Context, receiverID string) (Result, error) {
	if receiverID == "" {
		return Result{}, ErrInvalidRequest
	}

	windowStart := s.clock().UTC().Truncate(s.window)
	key := windowKey(receiverID, windowStart)
	res := Result{WindowStart: windowStart, CreditTokens: s.creditTokens}

	claimed, err := s.claimer.Claim(ctx, key, s.window)
	if err != nil {
		// Redis being down must not stop credits; fall through to the
		// ledger, whose idempotency key still bounds this to one credit.
		logger.From(ctx).Warn("availability window claim failed", "error", err)
	} else if !claimed {
		return res, nil
	}

	appended, err := s.ledgers.Append(ctx, ledger.Entry{
		UserID:         receiverID,
		Type:           ledger.EntryTypeCredit,
		AmountTokens:   s.creditTokens,
		Source:         ledger.SourceAvailabilityPing,
		IdempotencyKey: key,
	})
	if err != nil {
		// Give the window back so a retry within it can still credit.
		_ = s.claimer.Release(ctx, key)
		return Result{}, err
	}
	res.Credited = appended.Created
	return res, nil
}

func windowKey(receiverID string, windowStart time.Time) string {
	return fmt.Sprintf("avail:%s:%d", receiverID, windowStart.Unix())
}
