package outcomes

import (
	"errors"
	"math"
	"testing"
	"time"
)

func testContext(now time.Time) Context {
	return Context{SessionID: "s1", UserID: "u1", AgentID: "a1", Now: now}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(testContext(time.Now()), TypeCallBack, CallbackData{})
	if !errors.Is(err, ErrUnknownOutcomeType) {
		t.Fatalf("expected ErrUnknownOutcomeType, got %v", err)
	}
}

func TestRegistry_ValidationGatesExecute(t *testing.T) {
	executed := false
	r := NewRegistry()
	r.Register(Handler{
		Def: Definition{Type: TypeHungUp},
		ValidateFunc: func(Context, Payload) ValidationResult {
			return ValidationResult{IsValid: false, Errors: []string{"nope"}}
		},
		ExecuteFunc: func(Handler, Context, Payload) Result {
			executed = true
			return Result{Success: true}
		},
	})

	_, err := r.Dispatch(testContext(time.Now()), TypeHungUp, GenericData{Type: TypeHungUp})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed in chain")
	}
	if executed {
		t.Fatalf("execute must not run when validation fails")
	}
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := DefaultRegistry()
	r.Register(Handler{Def: Definition{Type: TypeHungUp, Rule: ScoringRule{ScoreDelta: 7}}})

	rule, ok := r.Rule(TypeHungUp)
	if !ok || rule.ScoreDelta != 7 {
		t.Fatalf("expected overriding handler, got %+v ok=%v", rule, ok)
	}
}

func TestRegistry_ExecutionFailure(t *testing.T) {
	r := NewRegistry()
	r.Register(Handler{
		Def: Definition{Type: TypeHungUp},
		ExecuteFunc: func(Handler, Context, Payload) Result {
			return Result{Success: false, ErrorMessage: "boom"}
		},
	})
	_, err := r.Dispatch(testContext(time.Now()), TypeHungUp, GenericData{Type: TypeHungUp})
	if !errors.Is(err, ErrOutcomeExecutionFailed) {
		t.Fatalf("expected ErrOutcomeExecutionFailed, got %v", err)
	}
}

func TestRegistry_PayloadMismatchIsValidationError(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Dispatch(testContext(time.Now()), TypeCallBack, DoNotContactData{AgentNotes: "x"})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestCallback_TwoHoursAhead(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	at := now.Add(2 * time.Hour)
	r := DefaultRegistry()

	d, err := r.Dispatch(testContext(now), TypeCallBack, CallbackData{CallbackAt: &at, Reason: "after work"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if math.Abs(d.Result.NextCallDelayHours-2) > 0.001 {
		t.Fatalf("expected ~2h delay, got %v", d.Result.NextCallDelayHours)
	}
	if d.Result.ScoreAdjustment != 3 {
		t.Fatalf("expected +3, got %d", d.Result.ScoreAdjustment)
	}
	if d.Result.CallbackAt == nil || !d.Result.CallbackAt.Equal(at) {
		t.Fatalf("expected callback at %v, got %v", at, d.Result.CallbackAt)
	}
	if d.Result.Conversion != nil {
		t.Fatalf("call_back must not convert")
	}
	if len(d.Result.NextActions) == 0 || d.Result.NextActions[0].Type != ActionScheduleCallback {
		t.Fatalf("expected schedule_callback action, got %+v", d.Result.NextActions)
	}
}

func TestCallback_PastTimeRejected(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	r := DefaultRegistry()
	for _, at := range []time.Time{now, now.Add(-time.Minute)} {
		at := at
		_, err := r.Dispatch(testContext(now), TypeCallBack, CallbackData{CallbackAt: &at})
		if !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("expected validation failure for %v, got %v", at, err)
		}
	}
}

func TestDoNotContact_RequiresNotes(t *testing.T) {
	r := DefaultRegistry()
	h, _ := r.Handler(TypeDoNotContact)
	v := h.Validate(testContext(time.Now()), DoNotContactData{})
	if v.IsValid {
		t.Fatalf("expected invalid")
	}
	if len(v.Errors) != 1 || v.Errors[0] != "Notes are required when recording a do not contact outcome" {
		t.Fatalf("unexpected errors: %v", v.Errors)
	}

	_, err := r.Dispatch(testContext(time.Now()), TypeDoNotContact, DoNotContactData{})
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Errors) != 1 {
		t.Fatalf("expected single validation error, got %v", err)
	}
}

func TestDoNotContact_WarningsDoNotBlock(t *testing.T) {
	r := DefaultRegistry()
	d, err := r.Dispatch(testContext(time.Now()), TypeDoNotContact, DoNotContactData{AgentNotes: "asked twice"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(d.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", d.Warnings)
	}
	if d.Result.Conversion == nil || d.Result.Conversion.Type != ConversionOptedOut {
		t.Fatalf("expected opted_out conversion, got %+v", d.Result.Conversion)
	}
}

func TestNoAnswer_DelayEscalates(t *testing.T) {
	r := DefaultRegistry()
	cases := []struct {
		previous int
		want     float64
	}{
		{0, 4}, {1, 4}, {2, 24}, {4, 24}, {5, 48}, {9, 48},
	}
	for _, tc := range cases {
		c := testContext(time.Now())
		c.ConsecutiveNoAnswers = tc.previous
		d, err := r.Dispatch(c, TypeNoAnswer, NoAnswerData{})
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if d.Result.NextCallDelayHours != tc.want {
			t.Fatalf("previous=%d: expected %vh, got %vh", tc.previous, tc.want, d.Result.NextCallDelayHours)
		}
	}
}

func TestNoAnswer_EscalatesAtSixMisses(t *testing.T) {
	r := DefaultRegistry()
	d, err := r.Dispatch(testContext(time.Now()), TypeNoAnswer, NoAnswerData{NoAnswerCount: 6})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	found := false
	for _, a := range d.Result.NextActions {
		if a.Type == ActionEscalate {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected escalate action, got %+v", d.Result.NextActions)
	}
}

func TestMissedCall_FallbackDelay(t *testing.T) {
	now := time.Now()
	r := DefaultRegistry()
	past := now.Add(-time.Hour)
	d, err := r.Dispatch(testContext(now), TypeMissedCall, MissedCallData{ReturnAt: &past})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Result.NextCallDelayHours != 2 {
		t.Fatalf("expected 2h fallback, got %v", d.Result.NextCallDelayHours)
	}
	if d.Result.CallbackAt != nil || len(d.Result.NextActions) != 0 {
		t.Fatalf("past return time must not schedule a callback, got %+v", d.Result)
	}
}

func TestMissedCall_FutureReturnSchedulesCallback(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	at := now.Add(3 * time.Hour)
	d, err := DefaultRegistry().Dispatch(testContext(now), TypeMissedCall, MissedCallData{ReturnAt: &at})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Result.CallbackAt == nil || !d.Result.CallbackAt.Equal(at) {
		t.Fatalf("expected callback at %v, got %v", at, d.Result.CallbackAt)
	}
	if d.Result.NextCallDelayHours != 3 {
		t.Fatalf("expected 3h delay, got %v", d.Result.NextCallDelayHours)
	}
	acts := d.Result.NextActions
	if len(acts) != 1 || acts[0].Type != ActionScheduleCallback || !acts[0].ScheduledFor.Equal(at) {
		t.Fatalf("expected one schedule_callback action, got %+v", acts)
	}
}

func TestParseType(t *testing.T) {
	if _, err := ParseType("call_back"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := ParseType("voicemail"); !errors.Is(err, ErrUnknownOutcomeType) {
		t.Fatalf("expected ErrUnknownOutcomeType, got %v", err)
	}
}

func TestCatalog_EveryTypeHasHandler(t *testing.T) {
	r := DefaultRegistry()
	for _, typ := range AllTypes {
		if _, ok := r.Handler(typ); !ok {
			t.Fatalf("missing handler for %s", typ)
		}
		d, _ := Lookup(typ)
		if d.Rule.TriggersConversion && d.ConversionType == "" {
			t.Fatalf("%s converts without a conversion type", typ)
		}
	}
}
