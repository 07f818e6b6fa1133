package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"outreach-platform/internal/config"
	"outreach-platform/internal/queue"
)

// CallbackReenqueuer is the part of the queue transitioner the worker needs.
type CallbackReenqueuer interface {
	CallbackDue(ctx context.Context, callbackID string) (bool, error)
}

// Worker serves callbacks.due timers. It never listens on the action queue;
// outreach.action tasks belong to the external dispatcher.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	queues    map[string]int
	callbacks CallbackReenqueuer
	log       *slog.Logger
}

func NewWorker(cfg config.SchedulerConfig, callbacks CallbackReenqueuer, log *slog.Logger) (*Worker, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(cfg.RedisURL, cfg.RedisTLSInsecure)
	if err != nil {
		return nil, err
	}

	queueName := cfg.Queue
	if queueName == "" {
		queueName = "default"
	}
	actionQueue := cfg.ActionQueue
	if actionQueue == "" {
		actionQueue = config.DefaultActionQueue
	}
	if queueName == actionQueue {
		return nil, fmt.Errorf("worker queue %q is reserved for outreach actions", queueName)
	}

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 10
	}
	if log == nil {
		log = slog.Default()
	}

	queues := map[string]int{queueName: 1}
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	})

	w := &Worker{
		server:    server,
		mux:       asynq.NewServeMux(),
		queues:    queues,
		callbacks: callbacks,
		log:       log,
	}
	w.mux.HandleFunc(TaskCallbackDue, w.handleCallbackDue)

	return w, nil
}

// Run processes tasks until ctx is cancelled, then drains in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start scheduler worker: %w", err)
	}
	w.log.Info("scheduler worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}

func (w *Worker) handleCallbackDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCallbackDuePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.CallbackID == "" {
		return fmt.Errorf("%w: callback id missing", asynq.SkipRetry)
	}

	enqueued, err := w.callbacks.CallbackDue(ctx, payload.CallbackID)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrNotFound):
		w.log.Warn("callback due for unknown callback", "callback_id", payload.CallbackID)
		return nil
	case errors.Is(err, queue.ErrUserInactive):
		w.log.Info("callback due for inactive user", "callback_id", payload.CallbackID, "user_id", payload.UserID)
		return nil
	default:
		return err
	}

	if enqueued {
		w.log.Info("callback due, user re-enqueued", "callback_id", payload.CallbackID, "user_id", payload.UserID)
	} else {
		w.log.Debug("callback already closed", "callback_id", payload.CallbackID)
	}
	return nil
}
