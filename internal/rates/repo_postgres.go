package rates

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo persists receiver rates.
//
// Schema assumption: table receiver_rates with tokens_per_second NUMERIC.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, rate ReceiverRate) error {
	const q = `
INSERT INTO receiver_rates (id, receiver_id, tokens_per_second, effective_from, effective_to, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		rate.ID, rate.ReceiverID, rate.TokensPerSecond, rate.EffectiveFrom, rate.EffectiveTo, rate.Status, rate.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) FindEffective(ctx context.Context, receiverID string, at time.Time) (ReceiverRate, bool, error) {
	const q = `
SELECT id, receiver_id, tokens_per_second, effective_from, effective_to, status, created_at
FROM receiver_rates
WHERE receiver_id = $1
  AND status = 'active'
  AND effective_from <= $2
  AND (effective_to IS NULL OR effective_to > $2)
ORDER BY effective_from DESC
LIMIT 1
`
	var rate ReceiverRate
	err := r.db.QueryRowContext(ctx, q, receiverID, at).Scan(
		&rate.ID, &rate.ReceiverID, &rate.TokensPerSecond, &rate.EffectiveFrom, &rate.EffectiveTo, &rate.Status, &rate.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReceiverRate{}, false, nil
		}
		return ReceiverRate{}, false, err
	}
	return rate, true, nil
}
