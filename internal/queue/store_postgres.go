package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/calls"
	"outreach-platform/internal/outcomes"
	"outreach-platform/pkg/utils"
)

// NOTE: This store assumes the tables from migrations/00001_outreach_schema.sql,
// including the partial unique index that allows one open call_queue row per user
// and the unique transition_id index on conversions.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Transitions() audit.Repository { return audit.NewPostgresRepo(t.tx) }

func (t *pgTx) Sessions() calls.Repository { return calls.NewPostgresRepo(t.tx) }

func (t *pgTx) GetScore(ctx context.Context, userID string) (UserCallScore, error) {
	// Lock the score row to serialize concurrent dispositions per user.
	const q = `
SELECT user_id, current_score, is_active, current_queue_type, last_reset_at, last_outcome,
       total_attempts, consecutive_no_answers, last_call_at, needs_review, created_at, updated_at
FROM user_call_scores
WHERE user_id = $1
FOR UPDATE
`
	var (
		s                   UserCallScore
		queueType, outcome  string
		lastReset, lastCall sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, q, userID).Scan(
		&s.UserID,
		&s.CurrentScore,
		&s.IsActive,
		&queueType,
		&lastReset,
		&outcome,
		&s.TotalAttempts,
		&s.ConsecutiveNoAnswers,
		&lastCall,
		&s.NeedsReview,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserCallScore{}, ErrNotFound
		}
		return UserCallScore{}, err
	}
	s.CurrentQueueType = Type(queueType)
	s.LastOutcome = outcomes.Type(outcome)
	s.LastResetAt = utils.TimePtr(lastReset)
	s.LastCallAt = utils.TimePtr(lastCall)
	return s, nil
}

func (t *pgTx) UpsertScore(ctx context.Context, s UserCallScore) error {
	const q = `
INSERT INTO user_call_scores (user_id, current_score, is_active, current_queue_type, last_reset_at, last_outcome,
  total_attempts, consecutive_no_answers, last_call_at, needs_review, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (user_id) DO UPDATE SET
  current_score = EXCLUDED.current_score,
  is_active = EXCLUDED.is_active,
  current_queue_type = EXCLUDED.current_queue_type,
  last_reset_at = EXCLUDED.last_reset_at,
  last_outcome = EXCLUDED.last_outcome,
  total_attempts = EXCLUDED.total_attempts,
  consecutive_no_answers = EXCLUDED.consecutive_no_answers,
  last_call_at = EXCLUDED.last_call_at,
  needs_review = EXCLUDED.needs_review,
  updated_at = EXCLUDED.updated_at
`
	_, err := t.tx.ExecContext(ctx, q,
		s.UserID,
		s.CurrentScore,
		s.IsActive,
		string(s.CurrentQueueType),
		s.LastResetAt,
		string(s.LastOutcome),
		s.TotalAttempts,
		s.ConsecutiveNoAnswers,
		s.LastCallAt,
		s.NeedsReview,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

func (t *pgTx) GetOpenEntry(ctx context.Context, userID string) (Entry, error) {
	const q = `
SELECT id, user_id, queue_type, priority_score, status, queue_reason, next_attempt_at, created_at, updated_at
FROM call_queue
WHERE user_id = $1 AND status IN ('pending', 'assigned')
LIMIT 1
FOR UPDATE
`
	var (
		e                 Entry
		queueType, status string
		next              sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, q, userID).Scan(
		&e.ID,
		&e.UserID,
		&queueType,
		&e.PriorityScore,
		&status,
		&e.QueueReason,
		&next,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	e.QueueType = Type(queueType)
	e.Status = EntryStatus(status)
	e.NextAttemptAt = utils.TimePtr(next)
	return e, nil
}

func (t *pgTx) SaveEntry(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO call_queue (id, user_id, queue_type, priority_score, status, queue_reason, next_attempt_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
  queue_type = EXCLUDED.queue_type,
  priority_score = EXCLUDED.priority_score,
  status = EXCLUDED.status,
  queue_reason = EXCLUDED.queue_reason,
  next_attempt_at = EXCLUDED.next_attempt_at,
  updated_at = EXCLUDED.updated_at
`
	_, err := t.tx.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		string(e.QueueType),
		e.PriorityScore,
		string(e.Status),
		e.QueueReason,
		e.NextAttemptAt,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if utils.IsUniqueViolation(err) {
		return ErrInvalidArgument
	}
	return err
}

func (t *pgTx) InsertConversion(ctx context.Context, c Conversion) error {
	const q = `
INSERT INTO conversions (id, user_id, previous_queue_type, conversion_type, conversion_reason, final_score,
  total_attempts, converted_at, primary_agent_id, source, recovered_by, transition_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (transition_id) WHERE transition_id <> '' DO NOTHING
`
	res, err := t.tx.ExecContext(ctx, q,
		c.ID,
		c.UserID,
		string(c.PreviousQueueType),
		string(c.ConversionType),
		c.ConversionReason,
		c.FinalScore,
		c.TotalAttempts,
		c.ConvertedAt,
		c.PrimaryAgentID,
		string(c.Source),
		c.RecoveredBy,
		c.TransitionID,
		c.CreatedAt,
	)
	if err != nil {
		return err
	}
	// Zero rows means this transition already has its conversion.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConversionConflict
	}
	return nil
}

func (t *pgTx) ConversionsBetween(ctx context.Context, userID string, from, to time.Time) ([]Conversion, error) {
	const q = `
SELECT id, user_id, previous_queue_type, conversion_type, conversion_reason, final_score, total_attempts,
       converted_at, primary_agent_id, source, recovered_by, transition_id, created_at
FROM conversions
WHERE user_id = $1 AND converted_at BETWEEN $2 AND $3
ORDER BY converted_at ASC
`
	rows, err := t.tx.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversion
	for rows.Next() {
		var (
			c                      Conversion
			prev, convType, source string
		)
		if err := rows.Scan(
			&c.ID,
			&c.UserID,
			&prev,
			&convType,
			&c.ConversionReason,
			&c.FinalScore,
			&c.TotalAttempts,
			&c.ConvertedAt,
			&c.PrimaryAgentID,
			&source,
			&c.RecoveredBy,
			&c.TransitionID,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		c.PreviousQueueType = Type(prev)
		c.ConversionType = ConversionType(convType)
		c.Source = ConversionSource(source)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) GetCallback(ctx context.Context, id string) (Callback, error) {
	const q = `
SELECT id, user_id, scheduled_for, reason, original_session_id, status, created_at, completed_at
FROM callbacks
WHERE id = $1
`
	var (
		cb        Callback
		status    string
		completed sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, q, id).Scan(
		&cb.ID,
		&cb.UserID,
		&cb.ScheduledFor,
		&cb.Reason,
		&cb.OriginalSessionID,
		&status,
		&cb.CreatedAt,
		&completed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Callback{}, ErrNotFound
		}
		return Callback{}, err
	}
	cb.Status = CallbackStatus(status)
	cb.CompletedAt = utils.TimePtr(completed)
	return cb, nil
}

func (t *pgTx) UpsertCallback(ctx context.Context, cb Callback) error {
	const q = `
INSERT INTO callbacks (id, user_id, scheduled_for, reason, original_session_id, status, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
  scheduled_for = EXCLUDED.scheduled_for,
  reason = EXCLUDED.reason,
  status = EXCLUDED.status,
  completed_at = EXCLUDED.completed_at
`
	_, err := t.tx.ExecContext(ctx, q,
		cb.ID,
		cb.UserID,
		cb.ScheduledFor,
		cb.Reason,
		cb.OriginalSessionID,
		string(cb.Status),
		cb.CreatedAt,
		cb.CompletedAt,
	)
	return err
}

func (t *pgTx) CompleteOpenCallbacks(ctx context.Context, userID string, at time.Time) (int, error) {
	const q = `
UPDATE callbacks
SET status = 'completed', completed_at = $2
WHERE user_id = $1 AND status IN ('pending', 'accepted')
`
	res, err := t.tx.ExecContext(ctx, q, userID, at.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

