package rates

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository abstracts rate persistence.
type Repository interface {
	// FindEffective returns the rate effective for a receiver at an instant.
	FindEffective(ctx context.Context, receiverID string, at time.Time) (ReceiverRate, bool, error)
	Create(ctx context.Context, r ReceiverRate) error
}

// Service resolves and manages receiver rates.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrRateNotFound   = errors.New("rates: no effective rate")
	ErrInvalidRate    = errors.New("rates: rate must be positive")
	ErrInvalidRequest = errors.New("rates: invalid request")
)

// Resolve returns the receiver's per-second token rate effective at the given
// instant. Settlement fails closed when no rate is found.
func (s *Service) Resolve(ctx context.Context, receiverID string, at time.Time) (ReceiverRate, error) {
	if receiverID == "" {
		return ReceiverRate{}, ErrInvalidRequest
	}
	if at.IsZero() {
		at = s.clock().UTC()
	}
	r, ok, err := s.repo.FindEffective(ctx, receiverID, at)
	if err != nil {
		return ReceiverRate{}, err
	}
	if !ok {
		return ReceiverRate{}, ErrRateNotFound
	}
	return r, nil
}

// Set opens a new rate effective from now. Previous windows are left intact;
// resolution always picks the latest effective row.
func (s *Service) Set(ctx context.Context, receiverID string, tokensPerSecond decimal.Decimal) (ReceiverRate, error) {
	if receiverID == "" {
		return ReceiverRate{}, ErrInvalidRequest
	}
	if tokensPerSecond.LessThanOrEqual(decimal.Zero) {
		return ReceiverRate{}, ErrInvalidRate
	}
	now := s.clock().UTC()
	r := ReceiverRate{
		ID:              uuid.NewString(),
		ReceiverID:      receiverID,
		TokensPerSecond: tokensPerSecond,
		EffectiveFrom:   now,
		Status:          RateStatusActive,
		CreatedAt:       now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return ReceiverRate{}, err
	}
	return r, nil
}
