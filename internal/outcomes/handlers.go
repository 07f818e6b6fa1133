package outcomes

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Handler processes one outcome type. Handlers are stateless values; the
// function fields are the per-type behaviour and may be nil to get the default.
type Handler struct {
	Def Definition

	ValidateFunc    func(c Context, p Payload) ValidationResult
	ExecuteFunc     func(h Handler, c Context, p Payload) Result
	NextActionsFunc func(c Context, p Payload) []Action
	DelayHoursFunc  func(c Context, p Payload) float64
}

func (h Handler) Type() Type { return h.Def.Type }

// Validate checks the payload tag and then runs the type-specific rules.
func (h Handler) Validate(c Context, p Payload) ValidationResult {
	if p == nil {
		v := valid()
		v.addError("Outcome data is required")
		return v
	}
	if p.OutcomeType() != h.Def.Type {
		v := valid()
		v.addError(fmt.Sprintf("Outcome data of type %q does not match outcome %q", p.OutcomeType(), h.Def.Type))
		return v
	}
	if h.ValidateFunc == nil {
		return valid()
	}
	return h.ValidateFunc(c, p)
}

func (h Handler) Execute(c Context, p Payload) Result {
	if h.ExecuteFunc != nil {
		return h.ExecuteFunc(h, c, p)
	}
	return standardExecute(h, c, p)
}

func (h Handler) NextActions(c Context, p Payload) []Action {
	if h.NextActionsFunc == nil {
		return nil
	}
	return h.NextActionsFunc(c, p)
}

func (h Handler) DelayHours(c Context, p Payload) float64 {
	if h.DelayHoursFunc == nil {
		return 0
	}
	return h.DelayHoursFunc(c, p)
}

func standardExecute(h Handler, c Context, p Payload) Result {
	res := Result{
		Success:            true,
		NextActions:        h.NextActions(c, p),
		ScoreAdjustment:    h.Def.Rule.ScoreDelta,
		NextCallDelayHours: h.DelayHours(c, p),
	}
	if p != nil {
		res.Notes = p.Notes()
	}
	if res.NextActions == nil {
		res.NextActions = []Action{}
	}
	if h.Def.Rule.TriggersConversion {
		res.Conversion = &ConversionHint{Type: h.Def.ConversionType, Reason: conversionReason(h.Def, p)}
		res.NextCallDelayHours = 0
	}
	return res
}

func conversionReason(d Definition, p Payload) string {
	switch d.Type {
	case TypeDoNotContact:
		if dnc, ok := p.(DoNotContactData); ok && strings.TrimSpace(dnc.Reason) != "" {
			return "Do not contact requested: " + strings.TrimSpace(dnc.Reason)
		}
		return "Do not contact requested"
	case TypeNoClaim:
		return "User has no eligible claim"
	case TypeCompletedForm:
		return "Form completed during call"
	default:
		return d.DisplayName
	}
}

// hoursUntil is the non-negative number of hours from now to t.
func hoursUntil(now, t time.Time) float64 {
	h := t.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}

func fixedDelay(hours float64) func(Context, Payload) float64 {
	return func(Context, Payload) float64 { return hours }
}

func action(t ActionType, priority ActionPriority, reason string) Action {
	return Action{Type: t, Priority: priority, Reason: reason}
}

// --- call_back ---

func validateCallback(c Context, p Payload) ValidationResult {
	v := valid()
	d := p.(CallbackData)
	if d.CallbackAt == nil || d.CallbackAt.IsZero() {
		v.addError("Callback date and time is required")
		return v
	}
	if !d.CallbackAt.After(c.Now) {
		v.addError("Callback date and time must be in the future")
	}
	if strings.TrimSpace(d.Reason) == "" {
		v.addWarning("A callback reason helps the next agent prepare")
	}
	return v
}

func executeCallback(h Handler, c Context, p Payload) Result {
	res := standardExecute(h, c, p)
	d := p.(CallbackData)
	at := d.CallbackAt.UTC()
	res.CallbackAt = &at
	return res
}

func callbackActions(c Context, p Payload) []Action {
	d := p.(CallbackData)
	at := d.CallbackAt.UTC()
	reason := strings.TrimSpace(d.Reason)
	if reason == "" {
		reason = "callback requested"
	}
	reminderAt := at.Add(-15 * time.Minute)
	if reminderAt.Before(c.Now) {
		reminderAt = c.Now
	}
	return []Action{
		{Type: ActionScheduleCallback, Priority: PriorityHigh, Reason: reason, ScheduledFor: &at,
			Payload: map[string]string{"session_id": c.SessionID}},
		{Type: ActionSendSMS, Priority: PriorityNormal, Reason: "callback_reminder", ScheduledFor: &reminderAt,
			Payload: map[string]string{"template": "callback_reminder", "callback_at": at.Format(time.RFC3339)}},
	}
}

func callbackDelay(c Context, p Payload) float64 {
	d := p.(CallbackData)
	if d.CallbackAt == nil {
		return 0
	}
	return hoursUntil(c.Now, *d.CallbackAt)
}

// --- do_not_contact ---

func validateDoNotContact(_ Context, p Payload) ValidationResult {
	v := valid()
	d := p.(DoNotContactData)
	if strings.TrimSpace(d.AgentNotes) == "" {
		v.addError("Notes are required when recording a do not contact outcome")
	}
	if strings.TrimSpace(d.Reason) == "" {
		v.addWarning("A structured reason is recommended for do not contact requests")
	}
	if !d.Confirmed {
		v.addWarning("The user's request has not been confirmed")
	}
	return v
}

func doNotContactActions(c Context, p Payload) []Action {
	return []Action{{
		Type:     ActionFlagForReview,
		Priority: PriorityHigh,
		Reason:   "do_not_contact_compliance",
		Payload:  map[string]string{"agent_id": c.AgentID, "session_id": c.SessionID},
	}}
}

// --- no_answer ---

// noAnswerCount is the consecutive miss count including the current call.
func noAnswerCount(c Context, p Payload) int {
	n := c.ConsecutiveNoAnswers + 1
	if d, ok := p.(NoAnswerData); ok && d.NoAnswerCount > n {
		n = d.NoAnswerCount
	}
	return n
}

func noAnswerDelay(c Context, p Payload) float64 {
	switch n := noAnswerCount(c, p); {
	case n <= 2:
		return 4
	case n <= 5:
		return 24
	default:
		return 48
	}
}

func noAnswerActions(c Context, p Payload) []Action {
	n := noAnswerCount(c, p)
	var out []Action
	if n == 1 {
		out = append(out, Action{Type: ActionSendSMS, Priority: PriorityNormal, Reason: "missed_you",
			Payload: map[string]string{"template": "missed_you"}})
	}
	if n >= 6 {
		out = append(out, Action{Type: ActionEscalate, Priority: PriorityNormal, Reason: "repeated_no_answer",
			Payload: map[string]string{"no_answer_count": strconv.Itoa(n)}})
	}
	return out
}

// --- missed_call ---

// missedCallReturn is the user's promised return time when still ahead of now.
func missedCallReturn(c Context, p Payload) (time.Time, bool) {
	d := p.(MissedCallData)
	if d.ReturnAt == nil || !d.ReturnAt.After(c.Now) {
		return time.Time{}, false
	}
	return d.ReturnAt.UTC(), true
}

func executeMissedCall(h Handler, c Context, p Payload) Result {
	res := standardExecute(h, c, p)
	if at, ok := missedCallReturn(c, p); ok {
		res.CallbackAt = &at
	}
	return res
}

func missedCallActions(c Context, p Payload) []Action {
	at, ok := missedCallReturn(c, p)
	if !ok {
		return nil
	}
	return []Action{{Type: ActionScheduleCallback, Priority: PriorityHigh, Reason: "missed_call_return",
		ScheduledFor: &at, Payload: map[string]string{"session_id": c.SessionID}}}
}

func missedCallDelay(c Context, p Payload) float64 {
	if at, ok := missedCallReturn(c, p); ok {
		return hoursUntil(c.Now, at)
	}
	return 2
}

// --- magic link outcomes ---

func magicLinkActions(reason string) func(Context, Payload) []Action {
	return func(c Context, p Payload) []Action {
		a := action(ActionSendMagicLink, PriorityNormal, reason)
		if g, ok := p.(GenericData); ok && len(g.DocumentsRequested) > 0 {
			a.Payload = map[string]string{"documents": strings.Join(g.DocumentsRequested, ",")}
		}
		return []Action{a}
	}
}

func reviewActions(reason string) func(Context, Payload) []Action {
	return func(c Context, p Payload) []Action {
		a := action(ActionFlagForReview, PriorityNormal, reason)
		var detail string
		switch d := p.(type) {
		case NotInterestedData:
			detail = d.Reason
		case BadNumberData:
			detail = d.Reason
		}
		if detail = strings.TrimSpace(detail); detail != "" {
			a.Payload = map[string]string{"detail": detail}
		}
		return []Action{a}
	}
}

func mustDefinition(t Type) Definition {
	d, ok := Lookup(t)
	if !ok {
		panic("outcomes: missing catalog definition for " + string(t))
	}
	return d
}

// DefaultHandlers returns one handler per catalog type.
func DefaultHandlers() []Handler {
	return []Handler{
		{Def: mustDefinition(TypeCompletedForm)},
		{
			Def:             mustDefinition(TypeGoingToComplete),
			NextActionsFunc: magicLinkActions("going_to_complete"),
			DelayHoursFunc:  fixedDelay(2),
		},
		{
			Def:             mustDefinition(TypeMightComplete),
			NextActionsFunc: magicLinkActions("might_complete"),
			DelayHoursFunc:  fixedDelay(24),
		},
		{
			Def:             mustDefinition(TypeCallBack),
			ValidateFunc:    validateCallback,
			ExecuteFunc:     executeCallback,
			NextActionsFunc: callbackActions,
			DelayHoursFunc:  callbackDelay,
		},
		{
			Def:             mustDefinition(TypeNoAnswer),
			NextActionsFunc: noAnswerActions,
			DelayHoursFunc:  noAnswerDelay,
		},
		{
			Def:             mustDefinition(TypeMissedCall),
			ExecuteFunc:     executeMissedCall,
			NextActionsFunc: missedCallActions,
			DelayHoursFunc:  missedCallDelay,
		},
		{
			Def:            mustDefinition(TypeHungUp),
			DelayHoursFunc: fixedDelay(48),
		},
		{
			Def:             mustDefinition(TypeBadNumber),
			NextActionsFunc: reviewActions("bad_number"),
			DelayHoursFunc:  fixedDelay(168),
		},
		{Def: mustDefinition(TypeNoClaim)},
		{
			Def:             mustDefinition(TypeNotInterested),
			NextActionsFunc: reviewActions("not_interested"),
			DelayHoursFunc:  fixedDelay(72),
		},
		{
			Def:             mustDefinition(TypeDoNotContact),
			ValidateFunc:    validateDoNotContact,
			NextActionsFunc: doNotContactActions,
		},
	}
}
