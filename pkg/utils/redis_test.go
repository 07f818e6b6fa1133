package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRunLock_SingleHolder(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	ok, err := AcquireRunLock(ctx, rdb, "lock:monitor", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = AcquireRunLock(ctx, rdb, "lock:monitor", "b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second acquire to be rejected, ok=%v err=%v", ok, err)
	}

	released, err := ReleaseRunLock(ctx, rdb, "lock:monitor", "b")
	if err != nil || released {
		t.Fatalf("foreign token must not release, released=%v err=%v", released, err)
	}
	released, err = ReleaseRunLock(ctx, rdb, "lock:monitor", "a")
	if err != nil || !released {
		t.Fatalf("owner must release, released=%v err=%v", released, err)
	}

	ok, err = AcquireRunLock(ctx, rdb, "lock:monitor", "b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release, ok=%v err=%v", ok, err)
	}
}

func TestRunLock_ExpiresAfterTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	if ok, _ := AcquireRunLock(ctx, rdb, "lock:x", "a", time.Second); !ok {
		t.Fatalf("expected acquire")
	}
	mr.FastForward(2 * time.Second)
	if ok, _ := AcquireRunLock(ctx, rdb, "lock:x", "b", time.Second); !ok {
		t.Fatalf("expected acquire after ttl")
	}
}

func TestRunLock_RejectsInvalidArgs(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	if _, err := AcquireRunLock(ctx, nil, "k", "t", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := AcquireRunLock(ctx, rdb, "", "t", time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := AcquireRunLock(ctx, rdb, "k", "t", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestOpenRedis_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")

	if _, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr()}); err == nil {
		t.Fatalf("expected auth failure without password")
	}
	rdb, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr(), Password: "secret"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer rdb.Close()

	mr.Close()
	if err := PingRedis(context.Background(), rdb, time.Second); err == nil {
		t.Fatalf("expected ping failure after server stop")
	}
}
