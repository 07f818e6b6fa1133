package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/outcomes"
	"outreach-platform/internal/queue"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type recordingMetrics struct {
	err  error
	runs []HealthMetrics
}

func (r *recordingMetrics) Record(_ context.Context, m HealthMetrics) error {
	r.runs = append(r.runs, m)
	return r.err
}

type recordingAlerts struct {
	actions []outcomes.Action
}

func (r *recordingAlerts) Publish(_ context.Context, _, _ string, actions []outcomes.Action) error {
	r.actions = append(r.actions, actions...)
	return nil
}

type fixture struct {
	store   *queue.MemoryStore
	states  *queue.MemoryStateSource
	metrics *recordingMetrics
	alerts  *recordingAlerts
	mon     *Monitor
}

func newFixture(t *testing.T, sinks ...MetricsSink) fixture {
	t.Helper()
	f := fixture{
		store:   queue.NewMemoryStore(),
		states:  queue.NewMemoryStateSource(),
		metrics: &recordingMetrics{},
		alerts:  &recordingAlerts{},
	}
	f.mon = New(Options{
		Store:   f.store,
		States:  f.states,
		Metrics: append(sinks, f.metrics),
		Alerts:  f.alerts,
	})
	f.mon.clock = func() time.Time { return testNow }
	return f
}

// leak records an unsigned_users -> none move without a conversion, the way a
// transition looks when the state lookup was unavailable at the time.
func (f fixture) leak(t *testing.T, userID string, at time.Time) audit.TransitionEntry {
	t.Helper()
	tr := queue.NewTransitioner(f.store, nil, nil)
	if _, err := tr.Enqueue(context.Background(), userID, queue.TypeUnsignedUsers, "import"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	res, err := tr.RecordTransition(context.Background(), queue.TransitionEvent{
		UserID: userID, FromQueue: queue.TypeUnsignedUsers, ToQueue: queue.TypeNone,
		Reason: "signature_detected", OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("record transition: %v", err)
	}
	if res.Converted {
		t.Fatalf("fixture transition must not convert")
	}
	return res.Transition
}

func (f fixture) entry(t *testing.T, id string) audit.TransitionEntry {
	t.Helper()
	for _, e := range f.store.Transitions() {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("transition %s not found", id)
	return audit.TransitionEntry{}
}

func TestRunOnce_RecoversLeakBackdated(t *testing.T) {
	f := newFixture(t)
	at := testNow.Add(-30 * time.Second)
	tr := f.leak(t, "u1", at)
	f.states.Put(queue.UserState{UserID: "u1", HasSignature: true, Eligible: true})

	rep, err := f.mon.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Metrics.PotentialLeaks != 1 || rep.Metrics.Recovered != 1 || rep.Metrics.Unrecovered != 0 {
		t.Fatalf("unexpected metrics: %+v", rep.Metrics)
	}

	convs := f.store.Conversions()
	if len(convs) != 1 {
		t.Fatalf("expected one conversion, got %d", len(convs))
	}
	c := convs[0]
	if c.ConversionType != queue.ConversionSigned || c.Source != queue.SourceLeakMonitor || c.RecoveredBy != RecoveredBy {
		t.Fatalf("unexpected conversion: %+v", c)
	}
	if !c.ConvertedAt.Equal(at) || c.TransitionID != tr.ID {
		t.Fatalf("expected conversion backdated to %v and linked to %s, got %+v", at, tr.ID, c)
	}
	if e := f.entry(t, tr.ID); !e.ConversionLogged || e.RecoveredBy != RecoveredBy {
		t.Fatalf("expected transition marked logged, got %+v", e)
	}
	if len(f.metrics.runs) != 1 || f.metrics.runs[0].Recovered != 1 {
		t.Fatalf("expected metrics recorded, got %+v", f.metrics.runs)
	}
}

func TestRunOnce_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.leak(t, "u1", testNow.Add(-10*time.Second))
	f.states.Put(queue.UserState{UserID: "u1", HasSignature: true, Eligible: true})

	if _, err := f.mon.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rep, err := f.mon.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Metrics.PotentialLeaks != 0 {
		t.Fatalf("expected nothing left to reconcile, got %+v", rep.Metrics)
	}
	if n := len(f.store.Conversions()); n != 1 {
		t.Fatalf("expected a single conversion after two runs, got %d", n)
	}
}

func TestRunOnce_VerifiesNoConversion(t *testing.T) {
	f := newFixture(t)
	tr := f.leak(t, "u1", testNow.Add(-time.Minute))
	f.states.Put(queue.UserState{UserID: "u1", HasSignature: false, Eligible: true})

	rep, err := f.mon.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Metrics.VerifiedNoConversion != 1 || rep.Metrics.Recovered != 0 {
		t.Fatalf("unexpected metrics: %+v", rep.Metrics)
	}
	if !f.entry(t, tr.ID).VerifiedNoConversion {
		t.Fatalf("expected transition verified")
	}
	if len(f.store.Conversions()) != 0 {
		t.Fatalf("no conversion may be written")
	}
}

func TestRunOnce_OptedOutUserConverts(t *testing.T) {
	f := newFixture(t)
	f.leak(t, "u1", testNow.Add(-time.Minute))
	f.states.Put(queue.UserState{UserID: "u1", OptedOut: true, Eligible: true})

	rep, err := f.mon.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rep.Items) != 1 || rep.Items[0].ConversionType != queue.ConversionOptedOut {
		t.Fatalf("expected opted_out recovery, got %+v", rep.Items)
	}
}

func TestRunOnce_SkipsOutsideWindowAndNearbyConversion(t *testing.T) {
	f := newFixture(t)
	f.leak(t, "old", testNow.Add(-10*time.Minute))
	at := testNow.Add(-30 * time.Second)
	f.leak(t, "u2", at)
	f.states.Put(queue.UserState{UserID: "old", HasSignature: true, Eligible: true})
	f.states.Put(queue.UserState{UserID: "u2", HasSignature: true, Eligible: true})

	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx queue.Tx) error {
		return tx.InsertConversion(ctx, queue.Conversion{
			ID: "c1", UserID: "u2", PreviousQueueType: queue.TypeUnsignedUsers,
			ConversionType: queue.ConversionSigned, ConvertedAt: at.Add(5 * time.Second),
			Source: queue.SourceDisposition, CreatedAt: at,
		})
	})
	if err != nil {
		t.Fatalf("seed conversion: %v", err)
	}

	rep, err := f.mon.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Metrics.PotentialLeaks != 0 {
		t.Fatalf("expected no potential leaks, got %+v", rep.Items)
	}
}

func TestRunOnce_UnrecoveredIsTaggedAndAlerted(t *testing.T) {
	f := newFixture(t)
	tr := f.leak(t, "u1", testNow.Add(-time.Minute))
	f.states.Err = errors.New("onboarding api timeout")

	rep, err := f.mon.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Metrics.Unrecovered != 1 || rep.Items[0].Result != ItemFailed {
		t.Fatalf("expected one unrecovered leak, got %+v", rep)
	}
	e := f.entry(t, tr.ID)
	if !e.RecoveryFailed || e.RecoveryError == "" {
		t.Fatalf("expected transition tagged as failed, got %+v", e)
	}
	if len(f.alerts.actions) != 1 || f.alerts.actions[0].Type != outcomes.ActionEscalate {
		t.Fatalf("expected one escalation, got %+v", f.alerts.actions)
	}

	again, err := f.mon.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.Metrics.PotentialLeaks != 0 {
		t.Fatalf("tagged transitions must not be retried, got %+v", again.Metrics)
	}
}

func TestRunOnce_RepairFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	tr := f.leak(t, "u1", testNow.Add(-time.Minute))
	f.states.Put(queue.UserState{UserID: "u1", HasSignature: true, Eligible: true})
	f.store.Fail = func(op string) error {
		if op == "insert_conversion" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	rep, err := f.mon.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Metrics.Unrecovered != 1 {
		t.Fatalf("expected unrecovered leak, got %+v", rep.Metrics)
	}
	if e := f.entry(t, tr.ID); e.ConversionLogged || !e.RecoveryFailed {
		t.Fatalf("expected only the failure tag, got %+v", e)
	}
	if len(f.store.Conversions()) != 0 {
		t.Fatalf("rolled back repair must not leave a conversion")
	}
}

func TestRunOnce_MetricsFailureIsSwallowed(t *testing.T) {
	broken := &recordingMetrics{err: errors.New("insert failed")}
	f := newFixture(t, broken)

	if _, err := f.mon.RunOnce(context.Background()); err != nil {
		t.Fatalf("metrics failure must not fail the run: %v", err)
	}
	if len(broken.runs) != 1 || len(f.metrics.runs) != 1 {
		t.Fatalf("expected every sink to be called once")
	}
}

func TestRunOnce_SkipsWhenAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	f.mon.running.Store(true)

	if _, err := f.mon.RunOnce(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if len(f.metrics.runs) != 0 {
		t.Fatalf("skipped run must not record metrics")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.mon.interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.mon.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func newMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLock_SingleHolder(t *testing.T) {
	rdb := newMiniredis(t)
	a := NewRedisLock(rdb, "", time.Minute, nil)
	b := NewRedisLock(rdb, "", time.Minute, nil)
	ctx := context.Background()

	release, ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	if _, ok, err := b.Acquire(ctx); err != nil || ok {
		t.Fatalf("expected second acquire to fail, ok=%v err=%v", ok, err)
	}
	release()
	if _, ok, err := b.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected acquire after release, ok=%v err=%v", ok, err)
	}
}

func TestRunOnce_LockHeldElsewhereSkips(t *testing.T) {
	rdb := newMiniredis(t)
	holder := NewRedisLock(rdb, "", time.Minute, nil)
	if _, ok, err := holder.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("seed lock: ok=%v err=%v", ok, err)
	}

	f := newFixture(t)
	f.mon.lock = NewRedisLock(rdb, "", time.Minute, nil)
	if _, err := f.mon.RunOnce(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestRedisLatest_RecordAndRead(t *testing.T) {
	rdb := newMiniredis(t)
	latest := NewRedisLatest(rdb, "", time.Hour)
	ctx := context.Background()

	if _, ok, err := latest.Latest(ctx); err != nil || ok {
		t.Fatalf("expected empty latest, ok=%v err=%v", ok, err)
	}
	m := HealthMetrics{ID: "run-1", PotentialLeaks: 3, Recovered: 2, Unrecovered: 1, ExecutionTimeMs: 42, Timestamp: testNow}
	if err := latest.Record(ctx, m); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, ok, err := latest.Latest(ctx)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if got.ID != "run-1" || got.Unrecovered != 1 || !got.Timestamp.Equal(testNow) {
		t.Fatalf("unexpected latest: %+v", got)
	}
}
