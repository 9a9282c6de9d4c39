package preview

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo persists preview locks.
//
// Schema assumptions:
// - Table preview_locks with UNIQUE (caller_id, receiver_id).
// - Consumption is a guarded UPDATE (consumed = false predicate), so exactly
//   one concurrent consumer wins.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Ensure(ctx context.Context, l Lock) (Lock, error) {
	const q = `
INSERT INTO preview_locks (id, caller_id, receiver_id, consumed, created_at)
VALUES ($1,$2,$3,false,$4)
ON CONFLICT (caller_id, receiver_id) DO NOTHING
`
	if _, err := r.db.ExecContext(ctx, q, l.ID, l.CallerID, l.ReceiverID, l.CreatedAt); err != nil {
		return Lock{}, err
	}
	existing, ok, err := r.Get(ctx, l.CallerID, l.ReceiverID)
	if err != nil {
		return Lock{}, err
	}
	if !ok {
		return Lock{}, errors.New("preview: lock missing after ensure")
	}
	return existing, nil
}

func (r *PostgresRepo) Get(ctx context.Context, callerID, receiverID string) (Lock, bool, error) {
	const q = `
SELECT id, caller_id, receiver_id, consumed, consumed_at, consumed_by_call_id, created_at
FROM preview_locks
WHERE caller_id = $1 AND receiver_id = $2
`
	var l Lock
	var consumedAt sql.NullTime
	var consumedBy sql.NullString
	err := r.db.QueryRowContext(ctx, q, callerID, receiverID).Scan(
		&l.ID, &l.CallerID, &l.ReceiverID, &l.Consumed, &consumedAt, &consumedBy, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lock{}, false, nil
		}
		return Lock{}, false, err
	}
	if consumedAt.Valid {
		t := consumedAt.Time
		l.ConsumedAt = &t
	}
	if consumedBy.Valid {
		l.ConsumedByCallID = consumedBy.String
	}
	return l, true, nil
}

func (r *PostgresRepo) Consume(ctx context.Context, callerID, receiverID, callID string, at time.Time) (bool, error) {
	const q = `
UPDATE preview_locks
SET consumed = true, consumed_at = $3, consumed_by_call_id = $4
WHERE caller_id = $1 AND receiver_id = $2 AND consumed = false
`
	res, err := r.db.ExecContext(ctx, q, callerID, receiverID, at, callID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
