package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"outreach-platform/internal/calls"
	"outreach-platform/internal/monitor"
	"outreach-platform/internal/queue"
)

func TestReporting_RejectsInvalidRange(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()

	if _, err := svc.MonitorHealth(context.Background(), TimeRange{From: now, To: now}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.ConversionSummary(context.Background(), TimeRange{To: now}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestReporting_MonitorHealthAggregates(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Runs = []monitor.HealthMetrics{
		{ID: "r1", PotentialLeaks: 3, Recovered: 2, VerifiedNoConversion: 0, Unrecovered: 1, ExecutionTimeMs: 40, Timestamp: now.Add(-2 * time.Minute)},
		{ID: "r2", PotentialLeaks: 1, Recovered: 1, ExecutionTimeMs: 20, Timestamp: now.Add(-time.Minute)},
		{ID: "old", PotentialLeaks: 9, Unrecovered: 9, Timestamp: now.Add(-48 * time.Hour)},
	}
	svc := NewService(repo)

	out, err := svc.MonitorHealth(context.Background(), TimeRange{From: now.Add(-time.Hour), To: now})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Runs != 2 || out.PotentialLeaks != 4 || out.Recovered != 3 || out.Unrecovered != 1 {
		t.Fatalf("unexpected totals: %+v", out)
	}
	if out.MaxExecutionTimeMs != 40 || out.AvgExecutionTimeMs != 30 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.LastRun == nil || out.LastRun.ID != "r2" || !out.Healthy {
		t.Fatalf("expected healthy last run r2, got %+v", out.LastRun)
	}
	if out.RecoveryRate != 0.75 {
		t.Fatalf("expected recovery rate 0.75, got %v", out.RecoveryRate)
	}
}

func TestReporting_MonitorHealthEmptyRange(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()

	out, err := svc.MonitorHealth(context.Background(), TimeRange{From: now.Add(-time.Hour), To: now})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Runs != 0 || out.LastRun != nil || out.RecoveryRate != 1 {
		t.Fatalf("unexpected empty summary: %+v", out)
	}
}

func TestReporting_ConversionSummary(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Conversions = []queue.Conversion{
		{ID: "c1", ConversionType: queue.ConversionSigned, Source: queue.SourceDisposition, FinalScore: 40, TotalAttempts: 2, ConvertedAt: now.Add(-time.Minute)},
		{ID: "c2", ConversionType: queue.ConversionSigned, Source: queue.SourceLeakMonitor, FinalScore: 60, TotalAttempts: 4, ConvertedAt: now.Add(-2 * time.Minute)},
		{ID: "c3", ConversionType: queue.ConversionOptedOut, Source: queue.SourceTransition, ConvertedAt: now.Add(-3 * time.Minute)},
		{ID: "edge", ConversionType: queue.ConversionSigned, Source: queue.SourceDisposition, ConvertedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.ConversionSummary(context.Background(), TimeRange{From: now.Add(-time.Hour), To: now})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Total != 3 {
		t.Fatalf("expected 3 conversions (range end exclusive), got %d", out.Total)
	}
	if out.ByType[string(queue.ConversionSigned)] != 2 || out.BySource[string(queue.SourceLeakMonitor)] != 1 {
		t.Fatalf("unexpected buckets: %+v", out)
	}
	if out.Recovered != 1 || out.AverageFinalScore != 100.0/3 {
		t.Fatalf("unexpected recovered/average: %+v", out)
	}
}

func TestReporting_OutcomeSummary(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Outcomes = []calls.OutcomeRecord{
		{ID: "o1", AgentID: "a1", OutcomeType: "hung_up", CapturedAt: now.Add(-time.Minute)},
		{ID: "o2", AgentID: "a1", OutcomeType: "no_answer", CapturedAt: now.Add(-time.Minute)},
		{ID: "o3", AgentID: "a2", OutcomeType: "no_answer", CapturedAt: now.Add(-time.Minute)},
	}
	svc := NewService(repo)

	out, err := svc.OutcomeSummary(context.Background(), TimeRange{From: now.Add(-time.Hour), To: now})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Total != 3 || out.ByOutcome["no_answer"] != 2 || out.ByAgent["a1"] != 2 {
		t.Fatalf("unexpected summary: %+v", out)
	}
}
