package queue

import (
	"testing"

	"outreach-platform/internal/outcomes"
)

func TestEvaluateConversion_OutcomeRule(t *testing.T) {
	rule := outcomes.ScoringRule{TriggersConversion: true}
	v := EvaluateConversion(ConversionInput{
		Outcome: outcomes.TypeDoNotContact,
		Rule:    &rule,
		Hint:    &outcomes.ConversionHint{Type: "opted_out", Reason: "asked"},
	})
	if !v.Convert || v.Type != ConversionOptedOut || v.Reason != "asked" {
		t.Fatalf("unexpected verdict %+v", v)
	}

	v = EvaluateConversion(ConversionInput{Outcome: "custom", Rule: &rule})
	if !v.Convert || v.Type != ConversionMaxScoreReached {
		t.Fatalf("expected max_score_reached fallback, got %+v", v)
	}
}

func TestEvaluateConversion_HighScoreAloneDoesNotConvert(t *testing.T) {
	rule := outcomes.ScoringRule{ScoreDelta: 100}
	v := EvaluateConversion(ConversionInput{Outcome: outcomes.TypeNotInterested, Rule: &rule, FinalScore: 292})
	if v.Convert {
		t.Fatalf("non-converting outcome must not convert, got %+v", v)
	}
}

func TestEvaluateConversion_RealWorldState(t *testing.T) {
	cases := []struct {
		name     string
		from, to Type
		state    UserState
		convert  bool
		want     ConversionType
	}{
		{"signed leaves unsigned", TypeUnsignedUsers, TypeNone, UserState{HasSignature: true, Eligible: true}, true, ConversionSigned},
		{"unsigned without signature", TypeUnsignedUsers, TypeNone, UserState{Eligible: true, PendingRequirements: 0}, false, ""},
		{"requirements done", TypeOutstandingRequests, TypeNone, UserState{Eligible: true}, true, ConversionRequirementsCompleted},
		{"requirements pending", TypeOutstandingRequests, TypeNone, UserState{Eligible: true, PendingRequirements: 2}, false, ""},
		{"queue to queue is not a leak", TypeUnsignedUsers, TypeOutstandingRequests, UserState{HasSignature: true, Eligible: true}, false, ""},
		{"opted out", TypeUnsignedUsers, TypeNone, UserState{OptedOut: true, Eligible: true}, true, ConversionOptedOut},
		{"ineligible", TypeOutstandingRequests, TypeNone, UserState{PendingRequirements: 3}, true, ConversionNoLongerEligible},
	}
	for _, tc := range cases {
		st := tc.state
		v := EvaluateConversion(ConversionInput{FromQueue: tc.from, ToQueue: tc.to, State: &st})
		if v.Convert != tc.convert || v.Type != tc.want {
			t.Fatalf("%s: unexpected verdict %+v", tc.name, v)
		}
	}
}

func TestIsLeakPattern(t *testing.T) {
	if !IsLeakPattern(TypeUnsignedUsers, TypeNone) || !IsLeakPattern(TypeOutstandingRequests, TypeNone) {
		t.Fatalf("expected both exits to be leak patterns")
	}
	if IsLeakPattern(TypeNone, TypeUnsignedUsers) || IsLeakPattern(TypeUnsignedUsers, TypeUnsignedUsers) {
		t.Fatalf("unexpected leak pattern")
	}
}

func TestParseType(t *testing.T) {
	if q, err := ParseType("outstanding_requests"); err != nil || q != TypeOutstandingRequests {
		t.Fatalf("unexpected %q %v", q, err)
	}
	if _, err := ParseType("vip"); err == nil {
		t.Fatalf("expected error for unknown queue")
	}
}
