package calls

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallStatus_Terminal(t *testing.T) {
	for _, s := range []CallStatus{CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled} {
		if !s.Terminal() || !s.Valid() {
			t.Fatalf("expected %s terminal and valid", s)
		}
	}
	for _, s := range []CallStatus{CallStatusQueued, CallStatusRinging, CallStatusInProgress} {
		if s.Terminal() || !s.Valid() {
			t.Fatalf("expected %s non-terminal and valid", s)
		}
	}
	if CallStatus("voicemail").Valid() {
		t.Fatalf("expected unknown status invalid")
	}
}

func TestMemoryRepo_TerminalEventCreatesThenMerges(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if _, err := repo.ApplyTerminalEvent(ctx, TerminalEvent{CallSid: "CA1", Status: CallStatusRinging}, now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound without a user, got %v", err)
	}

	s, err := repo.ApplyTerminalEvent(ctx, TerminalEvent{SessionID: "s1", CallSid: "CA1", UserID: "u1", AgentID: "a1", Status: CallStatusInProgress}, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.UserID != "u1" || s.Status != CallStatusInProgress {
		t.Fatalf("unexpected session %+v", s)
	}

	ended := now.Add(3 * time.Minute)
	s, err = repo.ApplyTerminalEvent(ctx, TerminalEvent{CallSid: "CA1", Status: CallStatusCompleted, DurationSeconds: 180, EndedAt: &ended}, ended)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.ID != "s1" || s.DurationSeconds != 180 || s.EndedAt == nil || s.AgentID != "a1" {
		t.Fatalf("expected merge into s1, got %+v", s)
	}

	// A late, shorter duration must not shrink the recorded one.
	s, _ = repo.ApplyTerminalEvent(ctx, TerminalEvent{SessionID: "s1", DurationSeconds: 10}, ended)
	if s.DurationSeconds != 180 {
		t.Fatalf("expected duration kept at 180, got %d", s.DurationSeconds)
	}
}

func TestMemoryRepo_RejectsInvalidEvent(t *testing.T) {
	repo := NewMemoryRepo()
	_, err := repo.ApplyTerminalEvent(context.Background(), TerminalEvent{Status: CallStatusCompleted}, time.Now())
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestMemoryRepo_MarkDisposedOnce(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	repo.Put(Session{ID: "s1", UserID: "u1"})

	if err := repo.MarkDisposed(ctx, "s1", "hung_up", time.Now()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := repo.MarkDisposed(ctx, "s1", "hung_up", time.Now()); !errors.Is(err, ErrAlreadyDisposed) {
		t.Fatalf("expected ErrAlreadyDisposed, got %v", err)
	}
	if err := repo.MarkDisposed(ctx, "missing", "hung_up", time.Now()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
