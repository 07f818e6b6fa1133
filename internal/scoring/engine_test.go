package scoring

import (
	"testing"
	"time"

	"outreach-platform/internal/outcomes"
)

type stubRules map[outcomes.Type]outcomes.ScoringRule

func (s stubRules) Rule(t outcomes.Type) (outcomes.ScoringRule, bool) {
	r, ok := s[t]
	return r, ok
}

func continuing(score, attempts int, outcome outcomes.Type) Context {
	return Context{
		CurrentScore:      score,
		HasExistingRecord: true,
		CurrentQueueType:  "unsigned_users",
		PreviousQueueType: "unsigned_users",
		Outcome:           outcome,
		TotalAttempts:     attempts,
		UserCreatedAt:     time.Unix(1700000000, 0).UTC(),
	}
}

func TestEngine_FreshStartForNewUser(t *testing.T) {
	e := NewEngine(outcomes.DefaultRegistry(), nil)
	in := continuing(150, 0, outcomes.TypeCallBack)
	in.HasExistingRecord = false

	got := e.Calculate(in)
	if !got.FreshStart {
		t.Fatalf("expected fresh start")
	}
	if got.FinalScore != 3 {
		t.Fatalf("expected 0+3, got %d", got.FinalScore)
	}
}

func TestEngine_FreshStartOnQueueChange(t *testing.T) {
	e := NewEngine(outcomes.DefaultRegistry(), nil)
	in := continuing(80, 0, outcomes.TypeHungUp)
	in.CurrentQueueType = "outstanding_requests"

	got := e.Calculate(in)
	if !got.FreshStart || got.FinalScore != 20 {
		t.Fatalf("expected fresh start at 20, got %+v", got)
	}
}

func TestEngine_FreshStartOnRequirementsChange(t *testing.T) {
	e := NewEngine(outcomes.DefaultRegistry(), nil)
	in := continuing(80, 0, outcomes.TypeNoAnswer)
	reset := in.UserCreatedAt.Add(24 * time.Hour)
	changed := reset.Add(time.Hour)
	in.LastResetAt = &reset
	in.RequirementsChangedAt = &changed

	if got := e.Calculate(in); !got.FreshStart || got.FinalScore != 10 {
		t.Fatalf("expected fresh start at 10, got %+v", got)
	}

	older := reset.Add(-time.Hour)
	in.RequirementsChangedAt = &older
	if got := e.Calculate(in); got.FreshStart || got.FinalScore != 90 {
		t.Fatalf("expected continuation at 90, got %+v", got)
	}
}

func TestEngine_UnknownOutcomeDegrades(t *testing.T) {
	e := NewEngine(stubRules{}, nil)
	got := e.Calculate(continuing(40, 0, outcomes.Type("voicemail")))
	if got.FinalScore != 40 {
		t.Fatalf("expected unchanged 40, got %d", got.FinalScore)
	}
	found := false
	for _, f := range got.Factors {
		if f.Name == FactorOutcomeUnknown {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected outcome_unknown factor, got %+v", got.Factors)
	}
}

func TestAttemptPenalty(t *testing.T) {
	cases := map[int]int{0: 0, 5: 0, 6: 1, 10: 5, 11: 3, 14: 12}
	for attempts, want := range cases {
		if got := AttemptPenalty(attempts); got != want {
			t.Fatalf("attempts=%d: expected %d, got %d", attempts, want, got)
		}
	}
}

func TestEngine_NotInterestedIsNotClamped(t *testing.T) {
	e := NewEngine(outcomes.DefaultRegistry(), nil)
	got := e.Calculate(continuing(190, 7, outcomes.TypeNotInterested))
	want := 290 + AttemptPenalty(7)
	if got.FinalScore != want {
		t.Fatalf("expected %d, got %d", want, got.FinalScore)
	}
	rule, _ := outcomes.DefaultRegistry().Rule(outcomes.TypeNotInterested)
	if !NeedsReview(got.FinalScore, rule) {
		t.Fatalf("expected review flag")
	}
}

func TestEngine_BoundsInvariant(t *testing.T) {
	rules := stubRules{
		"up":       {ScoreDelta: 500},
		"down":     {ScoreDelta: -500},
		"convert":  {ScoreDelta: 500, TriggersConversion: true},
		"converts": {ScoreDelta: -500, TriggersConversion: true},
	}
	e := NewEngine(rules, nil)
	for _, start := range []int{0, 50, 199, 200, 400} {
		for _, attempts := range []int{0, 7, 30} {
			for typ, rule := range rules {
				got := e.Calculate(continuing(start, attempts, typ)).FinalScore
				if got < MinScore {
					t.Fatalf("%s start=%d: below floor %d", typ, start, got)
				}
				if rule.TriggersConversion && got > MaxScore {
					t.Fatalf("%s start=%d: conversion score above ceiling %d", typ, start, got)
				}
			}
		}
	}
}

func TestEngine_FactorsRecorded(t *testing.T) {
	e := NewEngine(outcomes.DefaultRegistry(), nil)
	got := e.Calculate(continuing(10, 12, outcomes.TypeNoAnswer))
	if got.FinalScore != 10+10+6 {
		t.Fatalf("unexpected score %d", got.FinalScore)
	}
	names := map[string]bool{}
	for _, f := range got.Factors {
		names[f.Name] = true
	}
	for _, n := range []string{FactorBaseScore, FactorOutcome, FactorAttemptPenalty} {
		if !names[n] {
			t.Fatalf("missing factor %s in %+v", n, got.Factors)
		}
	}
	if got.Version != Version {
		t.Fatalf("expected version stamp")
	}
}
