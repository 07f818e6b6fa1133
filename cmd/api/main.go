package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"outreach-platform/internal/config"
	"outreach-platform/internal/monitor"
	"outreach-platform/internal/scheduler"
	"outreach-platform/migrations"
	"outreach-platform/pkg/logger"
	"outreach-platform/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PoolConfig{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := utils.Migrate(rootCtx, db, migrations.FS, migrations.Dir); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	actions, err := scheduler.NewClient(cfg.Scheduler, log)
	if err != nil {
		log.Error("scheduler client init failed", "err", err)
		os.Exit(1)
	}
	defer actions.Close()

	deps := buildServices(cfg, db, rdb, actions, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, cfg, deps, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var worker *scheduler.Worker
	if cfg.Scheduler.Enabled {
		worker, err = scheduler.NewWorker(cfg.Scheduler, deps.transitioner, log)
		if err != nil {
			log.Error("scheduler worker init failed", "err", err)
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		return nil
	})

	if cfg.Monitor.Enabled {
		g.Go(func() error {
			deps.monitor.Run(gctx)
			return nil
		})
	}

	if worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error("api stopped with error", "err", err)
		return
	}
	log.Info("api stopped")
}

var (
	_ monitor.ActionPublisher = (*scheduler.Client)(nil)
	_ monitor.MetricsSink     = (*monitor.RedisLatest)(nil)
	_ monitor.MetricsSink     = (*monitor.PostgresMetrics)(nil)
)
