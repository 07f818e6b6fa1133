package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "outreach"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, key := range []string{"APP_ENV", "DB_HOST", "REDIS_HOST"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in aggregated error, got %v", key, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Monitor.Interval != 60*time.Second || c.Monitor.Window != 2*time.Minute {
		t.Fatalf("unexpected monitor defaults: %+v", c.Monitor)
	}
	if c.Scheduler.Queue != "default" || c.Scheduler.ActionQueue != DefaultActionQueue || c.Scheduler.Concurrency != 10 {
		t.Fatalf("unexpected scheduler defaults: %+v", c.Scheduler)
	}
	if c.Scheduler.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected scheduler redis url %q", c.Scheduler.RedisURL)
	}
}

func TestValidate_TwilioTokenNeedsPublicURL(t *testing.T) {
	c := validConfig()
	c.Twilio.AuthToken = "token"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "TWILIO_PUBLIC_URL") {
		t.Fatalf("expected public url error, got %v", err)
	}
	c.Twilio.PublicURL = "https://api.example.com"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Twilio.Region != "US" {
		t.Fatalf("expected default region US, got %q", c.Twilio.Region)
	}
}

func TestValidate_LockTTLShorterThanInterval(t *testing.T) {
	c := validConfig()
	c.Monitor.Interval = 10 * time.Minute
	c.Monitor.LockTTL = time.Minute
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "MONITOR_LOCK_TTL") {
		t.Fatalf("expected lock ttl error, got %v", err)
	}
}

func TestRedisURL_TLSAndPassword(t *testing.T) {
	c := validConfig()
	c.Redis.TLS = true
	c.Redis.Password = "p@ss"
	c.Redis.DB = 2
	got := c.RedisURL()
	if got != "rediss://:p%40ss@localhost:6379/2" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestLoad_ParsesEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "outreach")
	t.Setenv("DB_NAME", "outreach")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("MONITOR_WINDOW", "5m")
	t.Setenv("MONITOR_ENABLED", "false")
	t.Setenv("WEBHOOK_RATE_PER_SECOND", "2.5")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.App.Port != 9090 || c.Monitor.Window != 5*time.Minute || c.Monitor.Enabled {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.HTTP.WebhookRatePerSecond != 2.5 || c.HTTP.WebhookBurst != 40 {
		t.Fatalf("unexpected http config: %+v", c.HTTP)
	}
}

func TestLoad_BadIntegerReported(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "6379")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "APP_PORT must be an integer") {
		t.Fatalf("expected APP_PORT parse error, got %v", err)
	}
}

func TestValidate_ActionQueueMustDifferFromCallbackQueue(t *testing.T) {
	c := validConfig()
	c.Scheduler.Queue = "outreach"
	c.Scheduler.ActionQueue = "outreach"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "ASYNQ_ACTION_QUEUE") {
		t.Fatalf("expected action queue error, got %v", err)
	}
}
