package outcomes

import (
	"strings"
	"time"
)

// Type is the disposition an agent records for a finished call.
// The set is closed; anything outside it is a defect reported as ErrUnknownOutcomeType.
type Type string

const (
	TypeCompletedForm   Type = "completed_form"
	TypeGoingToComplete Type = "going_to_complete"
	TypeMightComplete   Type = "might_complete"
	TypeCallBack        Type = "call_back"
	TypeNoAnswer        Type = "no_answer"
	TypeMissedCall      Type = "missed_call"
	TypeHungUp          Type = "hung_up"
	TypeBadNumber       Type = "bad_number"
	TypeNoClaim         Type = "no_claim"
	TypeNotInterested   Type = "not_interested"
	TypeDoNotContact    Type = "do_not_contact"
)

// AllTypes lists every outcome type in catalog order.
var AllTypes = []Type{
	TypeCompletedForm,
	TypeGoingToComplete,
	TypeMightComplete,
	TypeCallBack,
	TypeNoAnswer,
	TypeMissedCall,
	TypeHungUp,
	TypeBadNumber,
	TypeNoClaim,
	TypeNotInterested,
	TypeDoNotContact,
}

// ParseType maps a raw value onto the closed enumeration.
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	for _, known := range AllTypes {
		if t == known {
			return t, nil
		}
	}
	return "", ErrUnknownOutcomeType
}

type Category string

const (
	CategoryPositive       Category = "positive"
	CategoryNeutral        Category = "neutral"
	CategoryNegative       Category = "negative"
	CategoryAdministrative Category = "administrative"
)

// ScoringRule is the catalog's scoring contribution for one outcome type.
type ScoringRule struct {
	ScoreDelta         int  `json:"score_delta"`
	TriggersConversion bool `json:"triggers_conversion"`
}

// Definition is one catalog row: display metadata plus scoring rules.
type Definition struct {
	Type        Type        `json:"type"`
	DisplayName string      `json:"display_name"`
	Description string      `json:"description"`
	Category    Category    `json:"category"`
	Rule        ScoringRule `json:"rule"`

	// ConversionType is set for outcomes whose rule triggers conversion.
	ConversionType string `json:"conversion_type,omitempty"`

	RequiresNotes    bool `json:"requires_notes"`
	SupportsCallback bool `json:"supports_callback"`
}

// Context is everything a handler may look at when processing a disposition.
// It is built from the terminal call event and the user's score record.
type Context struct {
	SessionID string
	UserID    string
	AgentID   string
	CallSid   string

	DurationSeconds int
	ConnectedAt     *time.Time
	EndedAt         *time.Time

	PreviousOutcome      Type
	TotalAttempts        int
	ConsecutiveNoAnswers int

	// Now is the evaluation instant; handlers never read the wall clock.
	Now time.Time
}

type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (v *ValidationResult) addError(msg string) {
	v.Errors = append(v.Errors, msg)
	v.IsValid = false
}

func (v *ValidationResult) addWarning(msg string) {
	v.Warnings = append(v.Warnings, msg)
}

func valid() ValidationResult { return ValidationResult{IsValid: true} }

// ActionType enumerates follow-ups emitted for the external dispatcher.
type ActionType string

const (
	ActionSendSMS          ActionType = "send_sms"
	ActionSendMagicLink    ActionType = "send_magic_link"
	ActionFlagForReview    ActionType = "flag_for_review"
	ActionEscalate         ActionType = "escalate"
	ActionScheduleCallback ActionType = "schedule_callback"
)

type ActionPriority string

const (
	PriorityLow    ActionPriority = "low"
	PriorityNormal ActionPriority = "normal"
	PriorityHigh   ActionPriority = "high"
)

// Action is a typed follow-up record. This module never executes them.
type Action struct {
	Type         ActionType        `json:"type"`
	Priority     ActionPriority    `json:"priority"`
	Reason       string            `json:"reason"`
	Payload      map[string]string `json:"payload,omitempty"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
}

// ConversionHint tells the transition layer how to record a conversion.
type ConversionHint struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Result is a handler's structured output for one disposition.
type Result struct {
	Success            bool            `json:"success"`
	NextActions        []Action        `json:"next_actions"`
	ScoreAdjustment    int             `json:"score_adjustment"`
	NextCallDelayHours float64         `json:"next_call_delay_hours"`
	CallbackAt         *time.Time      `json:"callback_at,omitempty"`
	Conversion         *ConversionHint `json:"conversion,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
}

// NextAttemptAt is the earliest time the user should be dialled again.
func (r Result) NextAttemptAt(now time.Time) time.Time {
	if r.CallbackAt != nil {
		return *r.CallbackAt
	}
	return now.Add(time.Duration(r.NextCallDelayHours * float64(time.Hour)))
}
