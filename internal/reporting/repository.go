package reporting

import (
	"context"
	"time"

	"outreach-platform/internal/calls"
	"outreach-platform/internal/monitor"
	"outreach-platform/internal/queue"
	"outreach-platform/pkg/utils"
)

// PostgresRepo reads reporting sources straight from the immutable tables.
type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListHealthMetrics(ctx context.Context, from, to time.Time) ([]monitor.HealthMetrics, error) {
	const q = `
SELECT id, potential_leaks, recovered, verified_no_conversion, unrecovered, execution_time_ms, recorded_at
FROM monitor_health_metrics
WHERE recorded_at >= $1 AND recorded_at < $2
ORDER BY recorded_at
`
	rows, err := r.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]monitor.HealthMetrics, 0)
	for rows.Next() {
		var m monitor.HealthMetrics
		if err := rows.Scan(
			&m.ID,
			&m.PotentialLeaks,
			&m.Recovered,
			&m.VerifiedNoConversion,
			&m.Unrecovered,
			&m.ExecutionTimeMs,
			&m.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListConversions(ctx context.Context, from, to time.Time) ([]queue.Conversion, error) {
	const q = `
SELECT id, user_id, previous_queue_type, conversion_type, conversion_reason, final_score, total_attempts,
       converted_at, primary_agent_id, source, recovered_by, transition_id, created_at
FROM conversions
WHERE converted_at >= $1 AND converted_at < $2
ORDER BY converted_at
`
	rows, err := r.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]queue.Conversion, 0)
	for rows.Next() {
		var (
			c        queue.Conversion
			prev     string
			convType string
			source   string
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
		c.PreviousQueueType = queue.Type(prev)
		c.ConversionType = queue.ConversionType(convType)
		c.Source = queue.ConversionSource(source)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListOutcomes(ctx context.Context, from, to time.Time) ([]calls.OutcomeRecord, error) {
	const q = `
SELECT id, session_id, user_id, agent_id, outcome_type, notes, captured_at
FROM call_outcomes
WHERE captured_at >= $1 AND captured_at < $2
ORDER BY captured_at
`
	rows, err := r.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.OutcomeRecord, 0)
	for rows.Next() {
		var o calls.OutcomeRecord
		if err := rows.Scan(&o.ID, &o.SessionID, &o.UserID, &o.AgentID, &o.OutcomeType, &o.Notes, &o.CapturedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
