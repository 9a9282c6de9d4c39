package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"callmarket/pkg/utils"
)

// PostgresRepo persists withdrawal requests.
//
// Schema assumptions:
// - Table withdrawal_requests with PRIMARY KEY (id) and a partial unique
//   index on (user_id, client_key) WHERE client_key IS NOT NULL.
// - Availability is computed inside the insert transaction under the same
//   per-user advisory lock the ledger settlement path takes, so a concurrent
//   settlement or second withdrawal cannot slip between check and insert.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const selectRequestSQL = `
SELECT id, user_id, amount_tokens, payout_address, status, client_key, tx_hash, created_at, updated_at
FROM withdrawal_requests
`

const lockedTokensSQL = `
SELECT COALESCE(SUM(amount_tokens), 0)
FROM withdrawal_requests
WHERE user_id = $1 AND status = 'pending'
`

const balanceInTxSQL = `
SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount_tokens ELSE -amount_tokens END), 0)
FROM ledger_entries
WHERE user_id = $1
`

func (r *PostgresRepo) Create(ctx context.Context, req Request) (Request, bool, error) {
	var out Request
	var created bool
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.UserID); err != nil {
			return err
		}

		if req.ClientKey != "" {
			existing, ok, err := r.findByClientKeyTx(ctx, tx, req.UserID, req.ClientKey)
			if err != nil {
				return err
			}
			if ok {
				out = existing
				return nil
			}
		}

		var balance, locked int64
		if err := tx.QueryRowContext(ctx, balanceInTxSQL, req.UserID).Scan(&balance); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, lockedTokensSQL, req.UserID).Scan(&locked); err != nil {
			return err
		}
		if balance-locked < req.AmountTokens {
			return ErrInsufficientAvailable
		}

		const q = `
INSERT INTO withdrawal_requests (id, user_id, amount_tokens, payout_address, status, client_key, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8)
`
		_, err := tx.ExecContext(ctx, q,
			req.ID, req.UserID, req.AmountTokens, req.PayoutAddress, req.Status,
			req.ClientKey, req.CreatedAt, req.UpdatedAt)
		if err != nil {
			if utils.IsUniqueViolation(err) {
				existing, ok, ferr := r.findByClientKeyTx(ctx, tx, req.UserID, req.ClientKey)
				if ferr != nil {
					return ferr
				}
				if ok {
					out = existing
					return nil
				}
			}
			return err
		}
		out = req
		created = true
		return nil
	})
	if err != nil {
		return Request{}, false, err
	}
	return out, created, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Request, bool, error) {
	row := r.db.QueryRowContext(ctx, selectRequestSQL+`WHERE id = $1`, id)
	return scanRequest(row)
}

func (r *PostgresRepo) FindByClientKey(ctx context.Context, userID, clientKey string) (Request, bool, error) {
	row := r.db.QueryRowContext(ctx, selectRequestSQL+`WHERE user_id = $1 AND client_key = $2`, userID, clientKey)
	return scanRequest(row)
}

func (r *PostgresRepo) findByClientKeyTx(ctx context.Context, tx *sql.Tx, userID, clientKey string) (Request, bool, error) {
	row := tx.QueryRowContext(ctx, selectRequestSQL+`WHERE user_id = $1 AND client_key = $2`, userID, clientKey)
	return scanRequest(row)
}

func (r *PostgresRepo) LockedTokens(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx, lockedTokensSQL, userID).Scan(&sum)
	return sum, err
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, status Status, txHash string, at time.Time) (Request, bool, error) {
	const q = `
UPDATE withdrawal_requests
SET status = $2, tx_hash = NULLIF($3,''), updated_at = $4
WHERE id = $1 AND status = 'pending'
`
	res, err := r.db.ExecContext(ctx, q, id, status, txHash, at)
	if err != nil {
		return Request{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Request{}, false, err
	}
	req, ok, err := r.Get(ctx, id)
	if err != nil {
		return Request{}, false, err
	}
	if !ok {
		return Request{}, false, ErrNotFound
	}
	return req, n == 1, nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, selectRequestSQL+`WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequestRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row *sql.Row) (Request, bool, error) {
	req, err := scanRequestFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, false, nil
		}
		return Request{}, false, err
	}
	return req, true, nil
}

func scanRequestRow(rows *sql.Rows) (Request, error) {
	return scanRequestFrom(rows)
}

func scanRequestFrom(s rowScanner) (Request, error) {
	var req Request
	var clientKey, txHash sql.NullString
	err := s.Scan(&req.ID, &req.UserID, &req.AmountTokens, &req.PayoutAddress, &req.Status,
		&clientKey, &txHash, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Request{}, err
	}
	if clientKey.Valid {
		req.ClientKey = clientKey.String
	}
	if txHash.Valid {
		req.TxHash = txHash.String
	}
	return req, nil
}
