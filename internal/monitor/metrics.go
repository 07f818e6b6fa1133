package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"outreach-platform/pkg/utils"
)

// PostgresMetrics appends one monitor_health_metrics row per run.
type PostgresMetrics struct {
	db utils.DBTX
}

func NewPostgresMetrics(db utils.DBTX) *PostgresMetrics { return &PostgresMetrics{db: db} }

func (p *PostgresMetrics) Record(ctx context.Context, m HealthMetrics) error {
	const q = `
INSERT INTO monitor_health_metrics (
  id, potential_leaks, recovered, verified_no_conversion, unrecovered, execution_time_ms, recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := p.db.ExecContext(ctx, q,
		m.ID,
		m.PotentialLeaks,
		m.Recovered,
		m.VerifiedNoConversion,
		m.Unrecovered,
		m.ExecutionTimeMs,
		m.Timestamp.UTC(),
	)
	return err
}

const DefaultLatestKey = "outreach:monitor:latest"

// RedisLatest keeps the most recent run's metrics under a single key so the
// health endpoint can read them without touching Postgres.
type RedisLatest struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLatest(rdb *redis.Client, key string, ttl time.Duration) *RedisLatest {
	if key == "" {
		key = DefaultLatestKey
	}
	return &RedisLatest{rdb: rdb, key: key, ttl: ttl}
}

func (r *RedisLatest) Record(ctx context.Context, m HealthMetrics) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	return r.rdb.Set(ctx, r.key, b, r.ttl).Err()
}

// Latest returns ok=false when no run has been recorded yet.
func (r *RedisLatest) Latest(ctx context.Context) (HealthMetrics, bool, error) {
	b, err := r.rdb.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return HealthMetrics{}, false, nil
		}
		return HealthMetrics{}, false, err
	}
	var m HealthMetrics
	if err := json.Unmarshal(b, &m); err != nil {
		return HealthMetrics{}, false, fmt.Errorf("decode metrics: %w", err)
	}
	return m, true, nil
}
