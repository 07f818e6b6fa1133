package calls

import (
	"context"
	"time"
)

type Repository interface {
	GetSession(ctx context.Context, id string) (Session, error)
	GetSessionByCallSid(ctx context.Context, callSid string) (Session, error)
	// ApplyTerminalEvent updates the session the event refers to, creating it
	// when the event carries a user.
	ApplyTerminalEvent(ctx context.Context, ev TerminalEvent, now time.Time) (Session, error)
	// MarkDisposed fails with ErrAlreadyDisposed when the session already has an outcome.
	MarkDisposed(ctx context.Context, id, outcome string, at time.Time) error
	InsertOutcome(ctx context.Context, r OutcomeRecord) error
	ListOutcomes(ctx context.Context, userID string) ([]OutcomeRecord, error)
}

// merge folds a provider event into s. Durations never shrink and known
// timestamps are never cleared by a later event.
func merge(s Session, ev TerminalEvent, now time.Time) Session {
	if ev.CallSid != "" {
		s.CallSid = ev.CallSid
	}
	if ev.AgentID != "" && s.AgentID == "" {
		s.AgentID = ev.AgentID
	}
	if ev.Status != "" {
		s.Status = ev.Status
	}
	if ev.DurationSeconds > s.DurationSeconds {
		s.DurationSeconds = ev.DurationSeconds
	}
	if ev.ConnectedAt != nil {
		s.ConnectedAt = ev.ConnectedAt
	}
	if ev.EndedAt != nil {
		s.EndedAt = ev.EndedAt
	}
	s.UpdatedAt = now.UTC()
	return s
}

func validateEvent(ev TerminalEvent) error {
	if ev.SessionID == "" && ev.CallSid == "" {
		return ErrInvalidEvent
	}
	if ev.Status != "" && !ev.Status.Valid() {
		return ErrInvalidEvent
	}
	if ev.DurationSeconds < 0 {
		return ErrInvalidEvent
	}
	return nil
}
