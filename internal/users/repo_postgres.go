package users

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo persists users.
//
// Schema assumption: table users with PRIMARY KEY (id).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, u User) error {
	const q = `
INSERT INTO users (id, display_name, role, frozen, payout_address, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		u.ID, u.DisplayName, u.Role, u.Frozen, u.PayoutAddress, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (User, bool, error) {
	const q = `
SELECT id, display_name, role, frozen, payout_address, created_at, updated_at
FROM users
WHERE id = $1
`
	var u User
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID, &u.DisplayName, &u.Role, &u.Frozen, &u.PayoutAddress, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}

func (r *PostgresRepo) SetFrozen(ctx context.Context, id string, frozen bool, at time.Time) error {
	const q = `UPDATE users SET frozen = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, frozen, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) SetPayoutAddress(ctx context.Context, id, address string, at time.Time) error {
	const q = `UPDATE users SET payout_address = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, address, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
