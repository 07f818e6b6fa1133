package scoring

import (
	"fmt"
	"log/slog"
	"time"

	"outreach-platform/internal/outcomes"
)

const (
	// Version is stamped on every score for debugging and analysis.
	// Bump it when the scoring rules change.
	Version = "priority-v3"

	MinScore = 0
	MaxScore = 200
)

// Factor names.
const (
	FactorFreshStart     = "fresh_start"
	FactorBaseScore      = "base_score"
	FactorOutcome        = "outcome"
	FactorOutcomeUnknown = "outcome_unknown"
	FactorAttemptPenalty = "attempt_penalty"
	FactorBounds         = "bounds"
)

// RuleLookup resolves the scoring rule for an outcome type.
type RuleLookup interface {
	Rule(t outcomes.Type) (outcomes.ScoringRule, bool)
}

// Context is the scoring input for one user after one disposition.
type Context struct {
	CurrentScore      int
	HasExistingRecord bool

	CurrentQueueType  string
	PreviousQueueType string

	LastOutcome outcomes.Type
	// Outcome is the disposition being scored; empty means none.
	Outcome outcomes.Type

	TotalAttempts int

	RequirementsChangedAt *time.Time
	LastResetAt           *time.Time
	UserCreatedAt         time.Time
}

type Factor struct {
	Name   string `json:"name"`
	Value  int    `json:"value"`
	Reason string `json:"reason"`
}

// PriorityScore is the engine output. Factors exist for auditing only;
// downstream logic reads FinalScore.
type PriorityScore struct {
	FinalScore int      `json:"final_score"`
	FreshStart bool     `json:"fresh_start"`
	Factors    []Factor `json:"factors"`
	Version    string   `json:"version"`
}

// Engine turns disposition history into a priority score. Lower is more urgent.
type Engine struct {
	Rules RuleLookup
	Log   *slog.Logger
}

func NewEngine(rules RuleLookup, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Rules: rules, Log: log}
}

// Calculate never fails: unknown outcomes degrade to a zero delta.
func (e *Engine) Calculate(in Context) PriorityScore {
	out := PriorityScore{Version: Version}
	add := func(name string, value int, reason string) {
		out.Factors = append(out.Factors, Factor{Name: name, Value: value, Reason: reason})
	}

	out.FreshStart = IsFreshStart(in)
	score := in.CurrentScore
	if out.FreshStart {
		score = 0
		add(FactorFreshStart, 0, freshStartReason(in))
	} else {
		add(FactorBaseScore, score, "continuing from current score")
	}

	var rule outcomes.ScoringRule
	if in.Outcome != "" {
		r, ok := e.lookup(in.Outcome)
		if ok {
			rule = r
			score += r.ScoreDelta
			add(FactorOutcome, r.ScoreDelta, string(in.Outcome))
		} else {
			e.log().Warn("scoring degraded: unknown outcome type", "outcome", in.Outcome)
			add(FactorOutcomeUnknown, 0, fmt.Sprintf("unknown outcome %q scored as 0", in.Outcome))
		}
	}

	if p := AttemptPenalty(in.TotalAttempts); p > 0 {
		score += p
		add(FactorAttemptPenalty, p, fmt.Sprintf("%d attempts", in.TotalAttempts))
	}

	bounded := ApplyBounds(score, rule.TriggersConversion)
	if bounded != score {
		add(FactorBounds, bounded-score, boundsReason(rule.TriggersConversion))
	}
	out.FinalScore = bounded
	return out
}

func (e *Engine) lookup(t outcomes.Type) (outcomes.ScoringRule, bool) {
	if e.Rules == nil {
		return outcomes.ScoringRule{}, false
	}
	return e.Rules.Rule(t)
}

func (e *Engine) log() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// IsFreshStart reports whether momentum resets: a new user, a queue change,
// or requirements that surfaced after the last reset.
func IsFreshStart(in Context) bool {
	if !in.HasExistingRecord {
		return true
	}
	if in.CurrentQueueType != in.PreviousQueueType {
		return true
	}
	if in.RequirementsChangedAt != nil {
		ref := in.UserCreatedAt
		if in.LastResetAt != nil && in.LastResetAt.After(ref) {
			ref = *in.LastResetAt
		}
		if in.RequirementsChangedAt.After(ref) {
			return true
		}
	}
	return false
}

func freshStartReason(in Context) string {
	switch {
	case !in.HasExistingRecord:
		return "new user"
	case in.CurrentQueueType != in.PreviousQueueType:
		return fmt.Sprintf("queue changed from %q to %q", in.PreviousQueueType, in.CurrentQueueType)
	default:
		return "requirements changed since last reset"
	}
}

// AttemptPenalty is added on every call once a user has been tried repeatedly.
func AttemptPenalty(attempts int) int {
	switch {
	case attempts > 10:
		return 3 * (attempts - 10)
	case attempts > 5:
		return attempts - 5
	default:
		return 0
	}
}

// ApplyBounds clamps converting outcomes into [MinScore, MaxScore] and only
// floors everything else, so scores above MaxScore mean "needs manual review".
func ApplyBounds(score int, conversion bool) int {
	if score < MinScore {
		return MinScore
	}
	if conversion && score > MaxScore {
		return MaxScore
	}
	return score
}

func boundsReason(conversion bool) string {
	if conversion {
		return "clamped to conversion bounds"
	}
	return "floored at minimum"
}

// NeedsReview marks non-converting users whose score passed the ceiling.
func NeedsReview(score int, rule outcomes.ScoringRule) bool {
	return !rule.TriggersConversion && score >= MaxScore
}
