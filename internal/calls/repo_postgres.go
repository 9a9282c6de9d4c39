package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo persists calls and participant trackers.
//
// Schema assumptions:
// - Table calls with PRIMARY KEY (id); status is a text column.
// - Table call_participants with PRIMARY KEY (call_id); connection
//   timestamps are set with COALESCE so redelivered events keep the
//   earliest value.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const selectCallSQL = `
SELECT id, caller_id, receiver_id, status, preview_applied, created_at, ended_at, end_reason
FROM calls
WHERE id = $1
`

func (r *PostgresRepo) Create(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (id, caller_id, receiver_id, status, preview_applied, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.CallerID, c.ReceiverID, c.Status, c.PreviewApplied, c.CreatedAt)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Call, bool, error) {
	return r.scanCall(r.db.QueryRowContext(ctx, selectCallSQL, id))
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, to Status, from ...Status) (Call, bool, error) {
	const q = `
UPDATE calls
SET status = $2
WHERE id = $1 AND status = ANY($3)
`
	allowed := make([]string, 0, len(from))
	for _, f := range from {
		allowed = append(allowed, string(f))
	}
	res, err := r.db.ExecContext(ctx, q, id, to, allowed)
	if err != nil {
		return Call{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Call{}, false, err
	}
	c, ok, err := r.Get(ctx, id)
	if err != nil {
		return Call{}, false, err
	}
	if !ok {
		return Call{}, false, errors.New("calls: not found")
	}
	return c, n == 1, nil
}

func (r *PostgresRepo) MarkEnded(ctx context.Context, id string, at time.Time, reason string) (Call, bool, error) {
	const q = `
UPDATE calls
SET status = $2, ended_at = $3, end_reason = $4
WHERE id = $1 AND status <> $2
`
	res, err := r.db.ExecContext(ctx, q, id, StatusEnded, at, reason)
	if err != nil {
		return Call{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Call{}, false, err
	}
	c, ok, err := r.Get(ctx, id)
	if err != nil {
		return Call{}, false, err
	}
	if !ok {
		return Call{}, false, errors.New("calls: not found")
	}
	return c, n == 1, nil
}

func (r *PostgresRepo) SetPreviewApplied(ctx context.Context, id string, applied bool) error {
	const q = `UPDATE calls SET preview_applied = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, applied)
	return err
}

const selectParticipantSQL = `
SELECT call_id, caller_connected_at, receiver_connected_at, both_connected_at
FROM call_participants
WHERE call_id = $1
`

func (r *PostgresRepo) EnsureParticipant(ctx context.Context, callID string) (Participant, error) {
	const q = `
INSERT INTO call_participants (call_id)
VALUES ($1)
ON CONFLICT (call_id) DO NOTHING
`
	if _, err := r.db.ExecContext(ctx, q, callID); err != nil {
		return Participant{}, err
	}
	p, ok, err := r.GetParticipant(ctx, callID)
	if err != nil {
		return Participant{}, err
	}
	if !ok {
		return Participant{}, errors.New("calls: participant missing after ensure")
	}
	return p, nil
}

func (r *PostgresRepo) SetConnected(ctx context.Context, callID string, role Role, at time.Time) (Participant, error) {
	var q string
	switch role {
	case RoleCaller:
		q = `
UPDATE call_participants
SET caller_connected_at = COALESCE(caller_connected_at, $2)
WHERE call_id = $1
`
	case RoleReceiver:
		q = `
UPDATE call_participants
SET receiver_connected_at = COALESCE(receiver_connected_at, $2)
WHERE call_id = $1
`
	default:
		return Participant{}, errors.New("calls: unknown role")
	}
	if _, err := r.db.ExecContext(ctx, q, callID, at); err != nil {
		return Participant{}, err
	}
	p, ok, err := r.GetParticipant(ctx, callID)
	if err != nil {
		return Participant{}, err
	}
	if !ok {
		return Participant{}, errors.New("calls: participant not found")
	}
	return p, nil
}

func (r *PostgresRepo) SetBothConnected(ctx context.Context, callID string, at time.Time) (Participant, bool, error) {
	const q = `
UPDATE call_participants
SET both_connected_at = $2
WHERE call_id = $1 AND both_connected_at IS NULL
`
	res, err := r.db.ExecContext(ctx, q, callID, at)
	if err != nil {
		return Participant{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Participant{}, false, err
	}
	p, ok, err := r.GetParticipant(ctx, callID)
	if err != nil {
		return Participant{}, false, err
	}
	if !ok {
		return Participant{}, false, errors.New("calls: participant not found")
	}
	return p, n == 1, nil
}

func (r *PostgresRepo) GetParticipant(ctx context.Context, callID string) (Participant, bool, error) {
	var p Participant
	var caller, receiver, both sql.NullTime
	err := r.db.QueryRowContext(ctx, selectParticipantSQL, callID).Scan(
		&p.CallID, &caller, &receiver, &both,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Participant{}, false, nil
		}
		return Participant{}, false, err
	}
	if caller.Valid {
		t := caller.Time
		p.CallerConnectedAt = &t
	}
	if receiver.Valid {
		t := receiver.Time
		p.ReceiverConnectedAt = &t
	}
	if both.Valid {
		t := both.Time
		p.BothConnectedAt = &t
	}
	return p, true, nil
}

func (r *PostgresRepo) scanCall(row *sql.Row) (Call, bool, error) {
	var c Call
	var endedAt sql.NullTime
	var reason sql.NullString
	err := row.Scan(&c.ID, &c.CallerID, &c.ReceiverID, &c.Status, &c.PreviewApplied, &c.CreatedAt, &endedAt, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, false, nil
		}
		return Call{}, false, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	if reason.Valid {
		c.EndReason = reason.String
	}
	return c, true, nil
}
