package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"outreach-platform/internal/config"
	"outreach-platform/internal/outcomes"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client publishes follow-up actions as asynq tasks. It satisfies the action
// sinks of the disposition service and the leak monitor.
//
// Actions go to actionQueue, which only the external dispatcher consumes.
// Callback timers go to queue, which the in-process Worker serves.
type Client struct {
	client      enqueuer
	queue       string
	actionQueue string
	log         *slog.Logger
}

func NewClient(cfg config.SchedulerConfig, log *slog.Logger) (*Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(cfg.RedisURL, cfg.RedisTLSInsecure)
	if err != nil {
		return nil, err
	}

	queue := cfg.Queue
	if queue == "" {
		queue = "default"
	}
	actionQueue := cfg.ActionQueue
	if actionQueue == "" {
		actionQueue = config.DefaultActionQueue
	}
	if actionQueue == queue {
		return nil, fmt.Errorf("action queue %q must differ from callback queue", actionQueue)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		client:      asynq.NewClient(opt),
		queue:       queue,
		actionQueue: actionQueue,
		log:         log,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Publish enqueues one outreach.action task per action. Actions with a
// ScheduledFor time are delayed until then. A schedule_callback action that
// names a callback also arms the callbacks.due timer for it.
func (c *Client) Publish(ctx context.Context, userID, sessionID string, actions []outcomes.Action) error {
	if c == nil || c.client == nil {
		return nil
	}

	var errs []error
	for _, a := range actions {
		task, err := NewOutreachActionTask(OutreachActionPayload{UserID: userID, SessionID: sessionID, Action: a})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		opts := []asynq.Option{asynq.Queue(c.actionQueue)}
		if a.ScheduledFor != nil {
			opts = append(opts, asynq.ProcessAt(*a.ScheduledFor))
		}
		if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", a.Type, err))
			continue
		}

		if a.Type == outcomes.ActionScheduleCallback && a.ScheduledFor != nil && a.Payload["callback_id"] != "" {
			if err := c.scheduleCallbackDue(ctx, userID, a); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Client) scheduleCallbackDue(ctx context.Context, userID string, a outcomes.Action) error {
	id := a.Payload["callback_id"]
	task, err := NewCallbackDueTask(CallbackDuePayload{CallbackID: id, UserID: userID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(*a.ScheduledFor),
		asynq.Queue(c.queue),
		asynq.TaskID("callback:"+id),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.log.Debug("callback timer already armed", "callback_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue callback timer: %w", err)
	}
	return nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
