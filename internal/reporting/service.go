package reporting

import (
	"context"
	"errors"
	"time"

	"outreach-platform/internal/calls"
	"outreach-platform/internal/monitor"
	"outreach-platform/internal/queue"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations read the immutable sources (monitor runs, conversion ledger,
// outcome records), never the mutable score projection.
type Repository interface {
	ListHealthMetrics(ctx context.Context, from, to time.Time) ([]monitor.HealthMetrics, error)
	ListConversions(ctx context.Context, from, to time.Time) ([]queue.Conversion, error)
	ListOutcomes(ctx context.Context, from, to time.Time) ([]calls.OutcomeRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) MonitorHealth(ctx context.Context, r TimeRange) (MonitorHealth, error) {
	if !r.valid() {
		return MonitorHealth{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return MonitorHealth{}, errors.New("reporting: repository not configured")
	}

	runs, err := s.repo.ListHealthMetrics(ctx, r.From, r.To)
	if err != nil {
		return MonitorHealth{}, err
	}

	out := MonitorHealth{Range: r, Healthy: true}
	var totalMs int64
	for i := range runs {
		m := runs[i]
		out.Runs++
		out.PotentialLeaks += m.PotentialLeaks
		out.Recovered += m.Recovered
		out.VerifiedNoConversion += m.VerifiedNoConversion
		out.Unrecovered += m.Unrecovered
		totalMs += m.ExecutionTimeMs
		if m.ExecutionTimeMs > out.MaxExecutionTimeMs {
			out.MaxExecutionTimeMs = m.ExecutionTimeMs
		}
		if out.LastRun == nil || m.Timestamp.After(out.LastRun.Timestamp) {
			out.LastRun = &runs[i]
		}
	}
	if out.Runs > 0 {
		out.AvgExecutionTimeMs = totalMs / int64(out.Runs)
	}
	out.RecoveryRate = 1
	if out.PotentialLeaks > 0 {
		out.RecoveryRate = float64(out.Recovered) / float64(out.PotentialLeaks)
	}
	if out.LastRun != nil {
		out.Healthy = out.LastRun.Unrecovered == 0
	}
	return out, nil
}

func (s *Service) ConversionSummary(ctx context.Context, r TimeRange) (ConversionSummary, error) {
	if !r.valid() {
		return ConversionSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ConversionSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListConversions(ctx, r.From, r.To)
	if err != nil {
		return ConversionSummary{}, err
	}

	out := ConversionSummary{Range: r, ByType: map[string]int{}, BySource: map[string]int{}}
	var scores, attempts int
	for _, c := range rows {
		out.Total++
		out.ByType[string(c.ConversionType)]++
		out.BySource[string(c.Source)]++
		if c.Source == queue.SourceLeakMonitor {
			out.Recovered++
		}
		scores += c.FinalScore
		attempts += c.TotalAttempts
	}
	if out.Total > 0 {
		out.RecoveredShare = float64(out.Recovered) / float64(out.Total)
		out.AverageFinalScore = float64(scores) / float64(out.Total)
		out.AverageTotalAttempts = float64(attempts) / float64(out.Total)
	}
	return out, nil
}

func (s *Service) OutcomeSummary(ctx context.Context, r TimeRange) (OutcomeSummary, error) {
	if !r.valid() {
		return OutcomeSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return OutcomeSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListOutcomes(ctx, r.From, r.To)
	if err != nil {
		return OutcomeSummary{}, err
	}

	out := OutcomeSummary{Range: r, ByOutcome: map[string]int{}, ByAgent: map[string]int{}}
	for _, o := range rows {
		out.Total++
		out.ByOutcome[o.OutcomeType]++
		if o.AgentID != "" {
			out.ByAgent[o.AgentID]++
		}
	}
	return out, nil
}
