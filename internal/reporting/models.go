package reporting

import (
	"time"

	"outreach-platform/internal/monitor"
)

// Common filtering inputs. Ranges are half-open: [From, To).

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (r TimeRange) contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// MonitorHealth aggregates leak monitor runs in a range.
type MonitorHealth struct {
	Range TimeRange `json:"range"`

	Runs                 int `json:"runs"`
	PotentialLeaks       int `json:"potential_leaks"`
	Recovered            int `json:"recovered"`
	VerifiedNoConversion int `json:"verified_no_conversion"`
	Unrecovered          int `json:"unrecovered"`

	// RecoveryRate is Recovered / PotentialLeaks; 1 when nothing leaked.
	RecoveryRate float64 `json:"recovery_rate"`

	MaxExecutionTimeMs int64 `json:"max_execution_time_ms"`
	AvgExecutionTimeMs int64 `json:"avg_execution_time_ms"`

	LastRun *monitor.HealthMetrics `json:"last_run,omitempty"`
	// Healthy is true when the last run left nothing unrecovered.
	Healthy bool `json:"healthy"`
}

// ConversionSummary counts conversion ledger rows by type and by writer.
type ConversionSummary struct {
	Range TimeRange `json:"range"`

	Total    int            `json:"total"`
	ByType   map[string]int `json:"by_type"`
	BySource map[string]int `json:"by_source"`

	// Recovered counts rows written by the leak monitor.
	Recovered      int     `json:"recovered"`
	RecoveredShare float64 `json:"recovered_share"`

	AverageFinalScore    float64 `json:"average_final_score"`
	AverageTotalAttempts float64 `json:"average_total_attempts"`
}

// OutcomeSummary counts dispositions by outcome type and by agent.
type OutcomeSummary struct {
	Range TimeRange `json:"range"`

	Total     int            `json:"total"`
	ByOutcome map[string]int `json:"by_outcome"`
	ByAgent   map[string]int `json:"by_agent"`
}
