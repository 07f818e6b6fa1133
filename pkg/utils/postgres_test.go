package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

func TestPoolConfig_Defaults(t *testing.T) {
	c := PoolConfig{}.withDefaults()
	if c.Driver != "pgx" || c.MaxOpenConns != 20 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %v", c.PingTimeout)
	}

	custom := PoolConfig{MaxOpenConns: 4, PingTimeout: time.Second}.withDefaults()
	if custom.MaxOpenConns != 4 || custom.PingTimeout != time.Second {
		t.Fatalf("explicit values must be kept: %+v", custom)
	}
}

func TestOpenPostgres_UnknownDriver(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), "", PoolConfig{Driver: "no-such-driver"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestErrorClassification(t *testing.T) {
	dup := fmt.Errorf("insert conversion: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(dup) || IsRetryable(dup) {
		t.Fatalf("wrapped duplicate key must be a unique violation only")
	}
	for _, code := range []string{"40001", "40P01"} {
		if !IsRetryable(&pgconn.PgError{Code: code}) {
			t.Fatalf("expected %s to be retryable", code)
		}
	}
	if IsUniqueViolation(errors.New("23505")) || IsRetryable(nil) {
		t.Fatalf("plain errors must not classify")
	}
}

func TestTimePtr(t *testing.T) {
	if TimePtr(sql.NullTime{}) != nil {
		t.Fatalf("expected nil for NULL")
	}
	loc := time.FixedZone("CET", 3600)
	got := TimePtr(sql.NullTime{Valid: true, Time: time.Date(2026, 3, 2, 11, 0, 0, 0, loc)})
	if got == nil || got.Location() != time.UTC || got.Hour() != 10 {
		t.Fatalf("expected UTC time, got %v", got)
	}
}
