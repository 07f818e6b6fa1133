package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"outreach-platform/internal/calls"
	"outreach-platform/internal/config"
	"outreach-platform/internal/dispositions"
	"outreach-platform/internal/httpapi"
	"outreach-platform/internal/monitor"
	"outreach-platform/internal/outcomes"
	"outreach-platform/internal/queue"
	"outreach-platform/internal/reporting"
	"outreach-platform/internal/scheduler"
	"outreach-platform/internal/scoring"
	"outreach-platform/internal/telephony"
	"outreach-platform/pkg/utils"
	"outreach-platform/pkg/validator"
)

type services struct {
	transitioner *queue.Transitioner
	dispositions *dispositions.Service
	monitor      *monitor.Monitor
	latest       *monitor.RedisLatest
	reports      *reporting.Service
	sessions     *calls.PostgresRepo
	checks       map[string]func(ctx context.Context) error
}

// buildServices wires storage into the domain services. No business logic here.
func buildServices(cfg config.Config, db *sql.DB, rdb *redis.Client, actions *scheduler.Client, log *slog.Logger) services {
	store := queue.NewPostgresStore(db)
	states := queue.NewPostgresStateSource(db)
	registry := outcomes.DefaultRegistry()

	tr := queue.NewTransitioner(store, states, log)
	disp := dispositions.NewService(dispositions.Options{
		Store:        store,
		Registry:     registry,
		Scorer:       scoring.NewEngine(registry, log),
		Transitioner: tr,
		States:       states,
		Sink:         actions,
		Log:          log,
	})

	latest := monitor.NewRedisLatest(rdb, monitor.DefaultLatestKey, cfg.Monitor.LatestTTL)
	mon := monitor.New(monitor.Options{
		Store:    store,
		States:   states,
		Metrics:  []monitor.MetricsSink{monitor.NewPostgresMetrics(db), latest},
		Alerts:   actions,
		Lock:     monitor.NewRedisLock(rdb, monitor.DefaultLockKey, cfg.Monitor.LockTTL, log),
		Interval: cfg.Monitor.Interval,
		Window:   cfg.Monitor.Window,
		Log:      log,
	})

	return services{
		transitioner: tr,
		dispositions: disp,
		monitor:      mon,
		latest:       latest,
		reports:      reporting.NewService(reporting.NewPostgresRepo(db)),
		sessions:     calls.NewPostgresRepo(db),
		checks: map[string]func(ctx context.Context) error{
			"postgres": func(ctx context.Context) error { return utils.PingPostgres(ctx, db, time.Second) },
			"redis":    func(ctx context.Context) error { return utils.PingRedis(ctx, rdb, time.Second) },
		},
	}
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, s services, log *slog.Logger) {
	httpapi.Register(r, httpapi.Handlers{
		Dispositions: s.dispositions,
		Queue:        s.transitioner,
		Monitor:      s.monitor,
		Reports:      s.reports,
		Latest:       s.latest,
		Validator:    validator.New(),
		Checks:       s.checks,
	})

	// Provider webhooks (public, signature checked when a token is configured).
	limiter := telephony.NewIPRateLimiter(rate.Limit(cfg.HTTP.WebhookRatePerSecond), cfg.HTTP.WebhookBurst, log)
	hooks := r.Group("/webhooks")
	hooks.Use(limiter.RateLimit())
	{
		h := telephony.StatusCallbackHandler{
			Sessions:  s.sessions,
			AuthToken: cfg.Twilio.AuthToken,
			PublicURL: cfg.Twilio.PublicURL,
			Region:    cfg.Twilio.Region,
		}
		hooks.POST("/twilio/status", h.Handle)
	}
}
