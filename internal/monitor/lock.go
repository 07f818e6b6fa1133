package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"outreach-platform/pkg/utils"
)

const DefaultLockKey = "outreach:monitor:run-lock"

// RedisLock keeps a single monitor run in flight across instances.
type RedisLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
	log *slog.Logger
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration, log *slog.Logger) *RedisLock {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisLock{rdb: rdb, key: key, ttl: ttl, log: log}
}

func (l *RedisLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := utils.AcquireRunLock(ctx, l.rdb, l.key, token, l.ttl)
	if err != nil || !ok {
		return func() {}, false, err
	}
	release := func() {
		// Release must outlive a cancelled run context.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		released, err := utils.ReleaseRunLock(rctx, l.rdb, l.key, token)
		if err != nil {
			l.log.Warn("release monitor lock failed", "key", l.key, "err", err)
			return
		}
		if !released {
			l.log.Warn("monitor lock expired before release", "key", l.key)
		}
	}
	return release, true, nil
}
