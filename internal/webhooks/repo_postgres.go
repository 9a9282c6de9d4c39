package webhooks

import (
	"context"
	"database/sql"
)

// PostgresRepo persists event markers with UNIQUE (event_key).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, rec EventRecord) (bool, error) {
	const q = `
INSERT INTO webhook_events (id, event_key, event_type, call_id, received_at)
VALUES ($1,$2,$3,NULLIF($4,''),$5)
ON CONFLICT (event_key) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q, rec.ID, rec.EventKey, rec.EventType, rec.CallID, rec.ReceivedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
