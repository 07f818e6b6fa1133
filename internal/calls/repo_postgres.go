package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"outreach-platform/pkg/utils"
)

// PostgresRepo reads and writes call_sessions and call_outcomes.
type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

const sessionColumns = `id, user_id, agent_id, call_sid, status, duration_seconds, connected_at,
ended_at, last_outcome, disposed_at, created_at, updated_at`

func (r *PostgresRepo) GetSession(ctx context.Context, id string) (Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1`
	return r.getOne(ctx, q, id)
}

func (r *PostgresRepo) GetSessionByCallSid(ctx context.Context, callSid string) (Session, error) {
	if callSid == "" {
		return Session{}, ErrSessionNotFound
	}
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE call_sid = $1`
	return r.getOne(ctx, q, callSid)
}

func (r *PostgresRepo) getOne(ctx context.Context, q string, arg string) (Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return s, nil
}

func (r *PostgresRepo) ApplyTerminalEvent(ctx context.Context, ev TerminalEvent, now time.Time) (Session, error) {
	if err := validateEvent(ev); err != nil {
		return Session{}, err
	}

	var (
		s   Session
		err error
	)
	if ev.SessionID != "" {
		s, err = r.GetSession(ctx, ev.SessionID)
	} else {
		s, err = r.GetSessionByCallSid(ctx, ev.CallSid)
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotFound) && ev.UserID != "":
		id := ev.SessionID
		if id == "" {
			id = uuid.NewString()
		}
		s = Session{ID: id, UserID: ev.UserID, Status: CallStatusQueued, CreatedAt: now.UTC()}
	default:
		return Session{}, err
	}

	s = merge(s, ev, now)
	const q = `
INSERT INTO call_sessions (id, user_id, agent_id, call_sid, status, duration_seconds, connected_at, ended_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
  agent_id = EXCLUDED.agent_id,
  call_sid = EXCLUDED.call_sid,
  status = EXCLUDED.status,
  duration_seconds = EXCLUDED.duration_seconds,
  connected_at = EXCLUDED.connected_at,
  ended_at = EXCLUDED.ended_at,
  updated_at = EXCLUDED.updated_at
`
	if _, err := r.db.ExecContext(ctx, q,
		s.ID,
		s.UserID,
		s.AgentID,
		s.CallSid,
		string(s.Status),
		s.DurationSeconds,
		s.ConnectedAt,
		s.EndedAt,
		s.CreatedAt,
		s.UpdatedAt,
	); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *PostgresRepo) MarkDisposed(ctx context.Context, id, outcome string, at time.Time) error {
	// The disposed_at guard makes concurrent dispositions of one session race-safe.
	const q = `
UPDATE call_sessions
SET disposed_at = $2, last_outcome = $3, updated_at = $2
WHERE id = $1 AND disposed_at IS NULL
`
	res, err := r.db.ExecContext(ctx, q, id, at.UTC(), outcome)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetSession(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyDisposed
}

func (r *PostgresRepo) InsertOutcome(ctx context.Context, rec OutcomeRecord) error {
	const q = `
INSERT INTO call_outcomes (id, session_id, user_id, agent_id, outcome_type, notes, captured_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q, rec.ID, rec.SessionID, rec.UserID, rec.AgentID, rec.OutcomeType, rec.Notes, rec.CapturedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyDisposed
	}
	return nil
}

func (r *PostgresRepo) ListOutcomes(ctx context.Context, userID string) ([]OutcomeRecord, error) {
	const q = `
SELECT id, session_id, user_id, agent_id, outcome_type, notes, captured_at
FROM call_outcomes
WHERE user_id = $1
ORDER BY captured_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var o OutcomeRecord
		if err := rows.Scan(&o.ID, &o.SessionID, &o.UserID, &o.AgentID, &o.OutcomeType, &o.Notes, &o.CapturedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(s rowScanner) (Session, error) {
	var (
		out                          Session
		status                       string
		connected, ended, disposedAt sql.NullTime
	)
	if err := s.Scan(
		&out.ID,
		&out.UserID,
		&out.AgentID,
		&out.CallSid,
		&status,
		&out.DurationSeconds,
		&connected,
		&ended,
		&out.LastOutcome,
		&disposedAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return Session{}, err
	}
	out.Status = CallStatus(status)
	out.ConnectedAt = utils.TimePtr(connected)
	out.EndedAt = utils.TimePtr(ended)
	out.DisposedAt = utils.TimePtr(disposedAt)
	return out, nil
}
