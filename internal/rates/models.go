package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiverRate is the per-second token price a receiver charges callers.
//
// Rates are resolved at connection time (bothConnectedAt) so a mid-call rate
// change never affects an in-flight call. Fractional rates are supported; the
// settlement engine rounds the final charge, never per-second.
type ReceiverRate struct {
	ID         string `json:"id" db:"id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`

	TokensPerSecond decimal.Decimal `json:"tokens_per_second" db:"tokens_per_second"`

	// Effective window for the rate. A nil EffectiveTo means open-ended.
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	Status RateStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type RateStatus string

const (
	RateStatusActive   RateStatus = "active"
	RateStatusInactive RateStatus = "inactive"
)

// EffectiveAt reports whether the rate applies at the given instant.
func (r ReceiverRate) EffectiveAt(at time.Time) bool {
	if r.Status != RateStatusActive {
		return false
	}
	if at.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !at.Before(*r.EffectiveTo) {
		return false
	}
	return true
}
