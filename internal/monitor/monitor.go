// Package monitor reconciles the queue transition log against the conversion
// ledger. Every run looks at recent transitions that left a queue without a
// conversion, re-derives the user's state from the source of truth and either
// writes the missing conversion or marks the transition verified.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/outcomes"
	"outreach-platform/internal/queue"
)

const (
	defaultInterval = 60 * time.Second
	defaultWindow   = 2 * time.Minute

	// RecoveredBy tags rows written or repaired by this monitor.
	RecoveredBy = "leak_monitor"
)

var ErrRunInProgress = errors.New("monitor: run already in progress")

// HealthMetrics is the outcome of one monitoring run.
type HealthMetrics struct {
	ID                   string    `json:"id"`
	PotentialLeaks       int       `json:"potential_leaks"`
	Recovered            int       `json:"recovered"`
	VerifiedNoConversion int       `json:"verified_no_conversion"`
	Unrecovered          int       `json:"unrecovered"`
	ExecutionTimeMs      int64     `json:"execution_time_ms"`
	Timestamp            time.Time `json:"timestamp"`
}

type ItemResult string

const (
	ItemRecovered            ItemResult = "recovered"
	ItemVerifiedNoConversion ItemResult = "verified_no_conversion"
	ItemFailed               ItemResult = "failed"
)

// Item is the per-transition decision of a run.
type Item struct {
	TransitionID   string               `json:"transition_id"`
	UserID         string               `json:"user_id"`
	FromQueue      string               `json:"from_queue"`
	Result         ItemResult           `json:"result"`
	ConversionType queue.ConversionType `json:"conversion_type,omitempty"`
	Error          string               `json:"error,omitempty"`
}

type Report struct {
	Metrics HealthMetrics `json:"metrics"`
	Items   []Item        `json:"items"`
}

// MetricsSink persists run metrics. Failures never fail a run.
type MetricsSink interface {
	Record(ctx context.Context, m HealthMetrics) error
}

// ActionPublisher receives the escalation raised for unrecovered leaks.
type ActionPublisher interface {
	Publish(ctx context.Context, userID, sessionID string, actions []outcomes.Action) error
}

// RunLock serializes runs across processes. Acquire reports ok=false when
// another holder owns the lock.
type RunLock interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

type Options struct {
	Store  queue.Store
	States queue.StateSource
	// Metrics sinks are written in order; each failure is logged and skipped.
	Metrics []MetricsSink
	Alerts  ActionPublisher
	Lock    RunLock

	Interval time.Duration
	Window   time.Duration
	Log      *slog.Logger
}

type Monitor struct {
	store    queue.Store
	states   queue.StateSource
	metrics  []MetricsSink
	alerts   ActionPublisher
	lock     RunLock
	interval time.Duration
	window   time.Duration
	log      *slog.Logger
	clock    func() time.Time

	running atomic.Bool
}

func New(o Options) *Monitor {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.Window <= 0 {
		o.Window = defaultWindow
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return &Monitor{
		store:    o.Store,
		states:   o.States,
		metrics:  o.Metrics,
		alerts:   o.Alerts,
		lock:     o.Lock,
		interval: o.Interval,
		window:   o.Window,
		log:      o.Log,
		clock:    time.Now,
	}
}

// Run executes a reconciliation immediately and then every interval until ctx
// is cancelled. Run never returns an error and never panics.
func (m *Monitor) Run(ctx context.Context) {
	if m == nil || m.store == nil {
		return
	}
	m.log.Info("leak monitor started", "interval", m.interval.String(), "window", m.window.String())

	m.tick(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("leak monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("leak monitor run panicked", "panic", r)
		}
	}()
	if _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
		m.log.Error("leak monitor run failed", "err", err)
	}
}

// RunOnce performs one reconciliation. An overlapping call returns
// ErrRunInProgress without doing any work.
func (m *Monitor) RunOnce(ctx context.Context) (Report, error) {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Info("leak monitor run skipped", "reason", "previous run still in progress")
		return Report{}, ErrRunInProgress
	}
	defer m.running.Store(false)

	if m.lock != nil {
		release, ok, err := m.lock.Acquire(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("monitor: acquire run lock: %w", err)
		}
		if !ok {
			m.log.Info("leak monitor run skipped", "reason", "run lock held elsewhere")
			return Report{}, ErrRunInProgress
		}
		defer release()
	}

	start := m.clock()
	now := start.UTC()

	candidates, err := m.findLeaks(ctx, now)
	if err != nil {
		return Report{}, err
	}

	report := Report{Items: make([]Item, 0, len(candidates))}
	report.Metrics.PotentialLeaks = len(candidates)

	for _, e := range candidates {
		item := m.reconcile(ctx, e)
		switch item.Result {
		case ItemRecovered:
			report.Metrics.Recovered++
		case ItemVerifiedNoConversion:
			report.Metrics.VerifiedNoConversion++
		default:
			report.Metrics.Unrecovered++
		}
		report.Items = append(report.Items, item)
	}

	report.Metrics.ID = uuid.NewString()
	report.Metrics.Timestamp = now
	report.Metrics.ExecutionTimeMs = m.clock().Sub(start).Milliseconds()

	m.record(ctx, report.Metrics)
	if report.Metrics.Unrecovered > 0 {
		m.alert(ctx, report)
	}

	if report.Metrics.PotentialLeaks > 0 {
		m.log.Info("leak monitor run finished",
			"potential_leaks", report.Metrics.PotentialLeaks,
			"recovered", report.Metrics.Recovered,
			"verified_no_conversion", report.Metrics.VerifiedNoConversion,
			"unrecovered", report.Metrics.Unrecovered,
			"execution_time_ms", report.Metrics.ExecutionTimeMs,
		)
	}
	return report, nil
}

// findLeaks returns unreconciled transitions out of a queue inside the window
// that have no conversion for the same user near the transition time.
func (m *Monitor) findLeaks(ctx context.Context, now time.Time) ([]audit.TransitionEntry, error) {
	var out []audit.TransitionEntry
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx queue.Tx) error {
		pending, err := tx.Transitions().ListPending(ctx, now.Add(-m.window), now)
		if err != nil {
			return err
		}
		for _, e := range pending {
			if !queue.IsLeakPattern(queue.Type(e.FromQueue), queue.Type(e.ToQueue)) {
				continue
			}
			convs, err := tx.ConversionsBetween(ctx, e.UserID, e.OccurredAt.Add(-m.window), e.OccurredAt.Add(m.window))
			if err != nil {
				return err
			}
			if len(convs) > 0 {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: scan transitions: %w", err)
	}
	return out, nil
}

func (m *Monitor) reconcile(ctx context.Context, e audit.TransitionEntry) Item {
	item := Item{TransitionID: e.ID, UserID: e.UserID, FromQueue: e.FromQueue}

	verdict, err := m.verdict(ctx, e)
	if err == nil {
		if verdict.Convert {
			err = m.repair(ctx, e, verdict)
		} else {
			err = m.verify(ctx, e)
		}
	}
	if err != nil {
		item.Result = ItemFailed
		item.Error = err.Error()
		m.markFailed(ctx, e, err)
		return item
	}

	if verdict.Convert {
		item.Result = ItemRecovered
		item.ConversionType = verdict.Type
		m.log.Warn("conversion leak recovered",
			"transition_id", e.ID, "user_id", e.UserID, "from_queue", e.FromQueue,
			"conversion_type", verdict.Type)
	} else {
		item.Result = ItemVerifiedNoConversion
	}
	return item
}

func (m *Monitor) verdict(ctx context.Context, e audit.TransitionEntry) (queue.Verdict, error) {
	if m.states == nil {
		return queue.Verdict{}, errors.New("no user state source configured")
	}
	st, err := m.states.UserState(ctx, e.UserID)
	if err != nil {
		return queue.Verdict{}, fmt.Errorf("user state: %w", err)
	}
	return queue.EvaluateConversion(queue.ConversionInput{
		FromQueue: queue.Type(e.FromQueue),
		ToQueue:   queue.Type(e.ToQueue),
		State:     &st,
	}), nil
}

// repair writes the missing conversion backdated to the transition and marks
// the transition logged in one unit of work.
func (m *Monitor) repair(ctx context.Context, e audit.TransitionEntry, v queue.Verdict) error {
	now := m.clock().UTC()
	return m.store.WithinTx(ctx, func(ctx context.Context, tx queue.Tx) error {
		rec, err := tx.GetScore(ctx, e.UserID)
		hasRec := err == nil
		if err != nil && !errors.Is(err, queue.ErrNotFound) {
			return err
		}

		conv := queue.Conversion{
			ID:                uuid.NewString(),
			UserID:            e.UserID,
			PreviousQueueType: queue.Type(e.FromQueue),
			ConversionType:    v.Type,
			ConversionReason:  v.Reason,
			FinalScore:        rec.CurrentScore,
			TotalAttempts:     rec.TotalAttempts,
			ConvertedAt:       e.OccurredAt,
			Source:            queue.SourceLeakMonitor,
			RecoveredBy:       RecoveredBy,
			TransitionID:      e.ID,
			CreatedAt:         now,
		}
		err = tx.InsertConversion(ctx, conv)
		if err != nil && !errors.Is(err, queue.ErrConversionConflict) {
			return fmt.Errorf("insert conversion: %w", err)
		}

		if hasRec && rec.IsActive {
			rec.IsActive = false
			rec.CurrentQueueType = queue.TypeNone
			rec.UpdatedAt = now
			if err := tx.UpsertScore(ctx, rec); err != nil {
				return fmt.Errorf("deactivate score: %w", err)
			}
		}
		entry, err := tx.GetOpenEntry(ctx, e.UserID)
		switch {
		case err == nil:
			entry.Status = queue.EntryConverted
			entry.QueueReason = string(v.Type)
			entry.UpdatedAt = now
			if err := tx.SaveEntry(ctx, entry); err != nil {
				return fmt.Errorf("close entry: %w", err)
			}
		case errors.Is(err, queue.ErrNotFound):
		default:
			return err
		}

		return tx.Transitions().MarkConversionLogged(ctx, e.ID, RecoveredBy, now)
	})
}

func (m *Monitor) verify(ctx context.Context, e audit.TransitionEntry) error {
	now := m.clock().UTC()
	return m.store.WithinTx(ctx, func(ctx context.Context, tx queue.Tx) error {
		return tx.Transitions().MarkVerifiedNoConversion(ctx, e.ID, now)
	})
}

// markFailed tags the transition so later runs skip it; the tagging itself is best effort.
func (m *Monitor) markFailed(ctx context.Context, e audit.TransitionEntry, cause error) {
	m.log.Error("conversion leak recovery failed", "transition_id", e.ID, "user_id", e.UserID, "err", cause)
	now := m.clock().UTC()
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx queue.Tx) error {
		return tx.Transitions().MarkRecoveryFailed(ctx, e.ID, cause.Error(), now)
	})
	if err != nil {
		m.log.Error("tag recovery failure", "transition_id", e.ID, "err", err)
	}
}

func (m *Monitor) record(ctx context.Context, hm HealthMetrics) {
	for _, sink := range m.metrics {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, hm); err != nil {
			m.log.Warn("persist monitor metrics failed", "err", err)
		}
	}
}

func (m *Monitor) alert(ctx context.Context, r Report) {
	ids := make([]string, 0, r.Metrics.Unrecovered)
	for _, it := range r.Items {
		if it.Result == ItemFailed {
			ids = append(ids, it.TransitionID)
		}
	}
	m.log.Error("conversion leaks unrecovered", "unrecovered", r.Metrics.Unrecovered, "transition_ids", ids)
	if m.alerts == nil {
		return
	}
	action := outcomes.Action{
		Type:     outcomes.ActionEscalate,
		Priority: outcomes.PriorityHigh,
		Reason:   "conversion_leaks_unrecovered",
		Payload: map[string]string{
			"unrecovered":    strconv.Itoa(r.Metrics.Unrecovered),
			"transition_ids": strings.Join(ids, ","),
			"run_id":         r.Metrics.ID,
		},
	}
	if err := m.alerts.Publish(ctx, "", "", []outcomes.Action{action}); err != nil {
		m.log.Error("publish leak alert failed", "err", err)
	}
}
