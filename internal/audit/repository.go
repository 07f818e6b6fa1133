package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"outreach-platform/pkg/utils"
)

// NOTE: This repository assumes the queue_transitions table from
// migrations/00001_outreach_schema.sql.

type PostgresRepo struct {
	db utils.DBTX
}

// NewPostgresRepo binds the repository to a *sql.DB or a *sql.Tx.
func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

const entryColumns = `id, user_id, from_queue, to_queue, reason, session_id, outcome_type,
conversion_logged, verified_no_conversion, recovered_by, recovery_failed, recovery_error,
metadata, occurred_at, updated_at`

func (r *PostgresRepo) Append(ctx context.Context, e TransitionEntry) error {
	const q = `
INSERT INTO queue_transitions (` + entryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		e.FromQueue,
		e.ToQueue,
		e.Reason,
		e.SessionID,
		e.OutcomeType,
		e.ConversionLogged,
		e.VerifiedNoConversion,
		e.RecoveredBy,
		e.RecoveryFailed,
		e.RecoveryError,
		e.Metadata,
		e.OccurredAt,
		e.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (TransitionEntry, error) {
	q := `SELECT ` + entryColumns + ` FROM queue_transitions WHERE id = $1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TransitionEntry{}, ErrNotFound
		}
		return TransitionEntry{}, err
	}
	return e, nil
}

func (r *PostgresRepo) ListPending(ctx context.Context, from, to time.Time) ([]TransitionEntry, error) {
	q := `
SELECT ` + entryColumns + `
FROM queue_transitions
WHERE occurred_at BETWEEN $1 AND $2
  AND conversion_logged = FALSE
  AND verified_no_conversion = FALSE
  AND recovery_failed = FALSE
ORDER BY occurred_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkConversionLogged(ctx context.Context, id, recoveredBy string, at time.Time) error {
	const q = `
UPDATE queue_transitions
SET conversion_logged = TRUE, recovered_by = $2, updated_at = $3
WHERE id = $1
`
	return r.exec(ctx, q, id, recoveredBy, at)
}

func (r *PostgresRepo) MarkVerifiedNoConversion(ctx context.Context, id string, at time.Time) error {
	const q = `
UPDATE queue_transitions
SET verified_no_conversion = TRUE, updated_at = $2
WHERE id = $1
`
	return r.exec(ctx, q, id, at)
}

func (r *PostgresRepo) MarkRecoveryFailed(ctx context.Context, id, reason string, at time.Time) error {
	const q = `
UPDATE queue_transitions
SET recovery_failed = TRUE, recovery_error = $2, updated_at = $3
WHERE id = $1
`
	return r.exec(ctx, q, id, reason, at)
}

func (r *PostgresRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (TransitionEntry, error) {
	var e TransitionEntry
	err := s.Scan(
		&e.ID,
		&e.UserID,
		&e.FromQueue,
		&e.ToQueue,
		&e.Reason,
		&e.SessionID,
		&e.OutcomeType,
		&e.ConversionLogged,
		&e.VerifiedNoConversion,
		&e.RecoveredBy,
		&e.RecoveryFailed,
		&e.RecoveryError,
		&e.Metadata,
		&e.OccurredAt,
		&e.UpdatedAt,
	)
	return e, err
}
