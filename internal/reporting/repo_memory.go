package reporting

import (
	"context"
	"sync"
	"time"

	"outreach-platform/internal/calls"
	"outreach-platform/internal/monitor"
	"outreach-platform/internal/queue"
)

// MemoryRepo is a simple in-memory reporting repository for tests and local runs.
type MemoryRepo struct {
	mu sync.Mutex

	Runs        []monitor.HealthMetrics
	Conversions []queue.Conversion
	Outcomes    []calls.OutcomeRecord
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

// Record lets the memory repo double as a monitor metrics sink.
func (r *MemoryRepo) Record(_ context.Context, m monitor.HealthMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Runs = append(r.Runs, m)
	return nil
}

func (r *MemoryRepo) ListHealthMetrics(_ context.Context, from, to time.Time) ([]monitor.HealthMetrics, error) {
	rng := TimeRange{From: from, To: to}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]monitor.HealthMetrics, 0)
	for _, m := range r.Runs {
		if rng.contains(m.Timestamp) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListConversions(_ context.Context, from, to time.Time) ([]queue.Conversion, error) {
	rng := TimeRange{From: from, To: to}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.Conversion, 0)
	for _, c := range r.Conversions {
		if rng.contains(c.ConvertedAt) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListOutcomes(_ context.Context, from, to time.Time) ([]calls.OutcomeRecord, error) {
	rng := TimeRange{From: from, To: to}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.OutcomeRecord, 0)
	for _, o := range r.Outcomes {
		if rng.contains(o.CapturedAt) {
			out = append(out, o)
		}
	}
	return out, nil
}
