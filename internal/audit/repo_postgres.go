package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo persists audit events.
//
// Storage recommendation:
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor_user_id, actor_role, user_id, call_id,
  withdrawal_request_id, ledger_entry_id, amount_tokens, message, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.ActorUserID, e.ActorRole, e.UserID, e.CallID,
		e.WithdrawalRequestID, e.LedgerEntryID, e.AmountTokens, e.Message, e.CreatedAt,
	)
	return err
}
