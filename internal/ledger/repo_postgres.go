package ledger

import (
	"context"
	"database/sql"
	"errors"

	"callmarket/pkg/utils"
)

// PostgresStore persists ledger entries in Postgres.
//
// Schema assumptions:
// - Table ledger_entries with UNIQUE (idempotency_key) and an INSERT-only policy.
// - Balance is always derived with SUM; there is no balance column.
//
// Concurrent settlement of the same payer is serialized with an advisory
// transaction lock on the payer id so the in-transaction balance check and the
// capped insert cannot interleave with another settlement.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertEntrySQL = `
INSERT INTO ledger_entries (
  id, user_id, type, amount_tokens, source, idempotency_key,
  call_id, withdrawal_request_id, tx_hash, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (idempotency_key) DO NOTHING
`

const selectEntryByKeySQL = `
SELECT id, user_id, type, amount_tokens, source, idempotency_key,
       call_id, withdrawal_request_id, tx_hash, created_at
FROM ledger_entries
WHERE idempotency_key = $1
LIMIT 1
`

const balanceSQL = `
SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount_tokens ELSE -amount_tokens END), 0)
FROM ledger_entries
WHERE user_id = $1
`

func (s *PostgresStore) Append(ctx context.Context, e Entry) (AppendResult, error) {
	var out AppendResult
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		inserted, err := insertEntry(ctx, tx, e)
		if err != nil {
			return err
		}
		if inserted {
			out = AppendResult{Entry: e, Created: true}
			return nil
		}
		existing, ok, err := findEntryByKeyTx(ctx, tx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("ledger: conflict on insert but existing row not found")
		}
		out = AppendResult{Entry: existing, Created: false}
		return nil
	})
	return out, err
}

func (s *PostgresStore) AppendSettlement(ctx context.Context, debit, credit Entry) (SettlementResult, error) {
	var out SettlementResult
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Serialize money movement per payer.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, debit.UserID); err != nil {
			return err
		}

		existing, ok, err := findEntryByKeyTx(ctx, tx, debit.IdempotencyKey)
		if err != nil {
			return err
		}
		if ok {
			// Settlement already ran; converge on its outcome.
			out.Debit = existing
			out.ChargedTokens = existing.AmountTokens
			credit.AmountTokens = existing.AmountTokens
			created, cr, err := insertOrFetch(ctx, tx, credit)
			if err != nil {
				return err
			}
			out.Credit = cr
			out.CreditCreated = created
			return nil
		}

		var balance int64
		if err := tx.QueryRowContext(ctx, balanceSQL, debit.UserID).Scan(&balance); err != nil {
			return err
		}

		requested := debit.AmountTokens
		capped := requested
		if balance < capped {
			capped = balance
		}
		if capped < 0 {
			capped = 0
		}
		out.ShortfallTokens = requested - capped
		out.ChargedTokens = capped
		if capped == 0 {
			return nil
		}

		debit.AmountTokens = capped
		credit.AmountTokens = capped

		created, row, err := insertOrFetch(ctx, tx, debit)
		if err != nil {
			return err
		}
		out.Debit = row
		out.DebitCreated = created

		created, row, err = insertOrFetch(ctx, tx, credit)
		if err != nil {
			return err
		}
		out.Credit = row
		out.CreditCreated = created
		return nil
	})
	return out, err
}

func (s *PostgresStore) BalanceOf(ctx context.Context, userID string) (int64, error) {
	var balance int64
	if err := s.db.QueryRowContext(ctx, balanceSQL, userID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, key string) (Entry, bool, error) {
	return scanEntry(s.db.QueryRowContext(ctx, selectEntryByKeySQL, key))
}

func (s *PostgresStore) ListByCall(ctx context.Context, callID string) ([]Entry, error) {
	const q = `
SELECT id, user_id, type, amount_tokens, source, idempotency_key,
       call_id, withdrawal_request_id, tx_hash, created_at
FROM ledger_entries
WHERE call_id = $1
ORDER BY created_at ASC
`
	return s.listEntries(ctx, q, callID)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	const q = `
SELECT id, user_id, type, amount_tokens, source, idempotency_key,
       call_id, withdrawal_request_id, tx_hash, created_at
FROM ledger_entries
WHERE user_id = $1
ORDER BY created_at ASC
`
	return s.listEntries(ctx, q, userID)
}

func (s *PostgresStore) listEntries(ctx context.Context, query, arg string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Type, &e.AmountTokens, &e.Source, &e.IdempotencyKey,
			&e.CallID, &e.WithdrawalRequestID, &e.TxHash, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertEntry(ctx context.Context, tx *sql.Tx, e Entry) (bool, error) {
	res, err := tx.ExecContext(ctx, insertEntrySQL,
		e.ID, e.UserID, e.Type, e.AmountTokens, e.Source, e.IdempotencyKey,
		e.CallID, e.WithdrawalRequestID, e.TxHash, e.CreatedAt,
	)
	if err != nil {
		// DO NOTHING swallows the conflict, but keep the check for schemas
		// where the unique index is declared differently.
		if utils.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func insertOrFetch(ctx context.Context, tx *sql.Tx, e Entry) (bool, Entry, error) {
	inserted, err := insertEntry(ctx, tx, e)
	if err != nil {
		return false, Entry{}, err
	}
	if inserted {
		return true, e, nil
	}
	existing, ok, err := findEntryByKeyTx(ctx, tx, e.IdempotencyKey)
	if err != nil {
		return false, Entry{}, err
	}
	if !ok {
		return false, Entry{}, errors.New("ledger: conflict on insert but existing row not found")
	}
	return false, existing, nil
}

func findEntryByKeyTx(ctx context.Context, tx *sql.Tx, key string) (Entry, bool, error) {
	return scanEntry(tx.QueryRowContext(ctx, selectEntryByKeySQL, key))
}

func scanEntry(row *sql.Row) (Entry, bool, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.UserID, &e.Type, &e.AmountTokens, &e.Source, &e.IdempotencyKey,
		&e.CallID, &e.WithdrawalRequestID, &e.TxHash, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}
