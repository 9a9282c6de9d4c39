package users

import "time"

// User is a marketplace participant. Any user may act as caller or receiver;
// receivers additionally carry a rate (internal/rates) and a payout address.
//
// Money invariant reminder: no token state lives here. Balances are derived
// from the ledger; locked amounts from pending withdrawal requests.
type User struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`

	// Role feeds RBAC (member, admin, super_admin).
	Role string `json:"role" db:"role"`

	// Frozen blocks withdrawals (and only withdrawals; calls still settle so
	// the ledger stays truthful).
	Frozen bool `json:"frozen" db:"frozen"`

	// PayoutAddress is the crypto destination for withdrawals. Validated on
	// write; withdrawal requests re-validate before locking tokens.
	PayoutAddress string `json:"payout_address,omitempty" db:"payout_address"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
