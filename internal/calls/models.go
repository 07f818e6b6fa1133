package calls

import (
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("calls: session not found")
	ErrAlreadyDisposed = errors.New("calls: session already disposed")
	ErrInvalidEvent    = errors.New("calls: invalid terminal event")
)

// Session is one outbound call attempt to one user, handled by one agent.
//
// Provider-specific identifiers (Twilio CallSid) are kept as a separate column
// so the session model stays provider-agnostic.
type Session struct {
	ID      string `json:"id" db:"id"`
	UserID  string `json:"user_id" db:"user_id"`
	AgentID string `json:"agent_id,omitempty" db:"agent_id"`
	CallSid string `json:"call_sid,omitempty" db:"call_sid"`

	Status CallStatus `json:"status" db:"status"`

	// DurationSeconds is the connected duration reported by the provider.
	DurationSeconds int        `json:"duration" db:"duration_seconds"`
	ConnectedAt     *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	LastOutcome string     `json:"last_outcome,omitempty" db:"last_outcome"`
	DisposedAt  *time.Time `json:"disposed_at,omitempty" db:"disposed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (s Session) Disposed() bool { return s.DisposedAt != nil }

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// Terminal reports whether no further provider events are expected.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	default:
		return false
	}
}

func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusQueued, CallStatusRinging, CallStatusInProgress:
		return true
	default:
		return s.Terminal()
	}
}

// OutcomeRecord is the immutable disposition captured for one session.
type OutcomeRecord struct {
	ID          string    `json:"id" db:"id"`
	SessionID   string    `json:"session_id" db:"session_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	AgentID     string    `json:"agent_id" db:"agent_id"`
	OutcomeType string    `json:"outcome_type" db:"outcome_type"`
	Notes       string    `json:"notes,omitempty" db:"notes"`
	CapturedAt  time.Time `json:"captured_at" db:"captured_at"`
}

// TerminalEvent is a provider status update for a session.
// UserID and AgentID are only needed when the event creates the session.
type TerminalEvent struct {
	SessionID       string
	CallSid         string
	UserID          string
	AgentID         string
	Status          CallStatus
	DurationSeconds int
	ConnectedAt     *time.Time
	EndedAt         *time.Time
	From            string
	To              string
}
