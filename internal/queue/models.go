package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach-platform/internal/outcomes"
)

var (
	ErrInvalidArgument    = errors.New("queue: invalid argument")
	ErrNotFound           = errors.New("queue: not found")
	ErrUserInactive       = errors.New("queue: user is inactive")
	ErrUserStateNotFound  = errors.New("queue: user state not found")
	ErrConversionConflict = errors.New("queue: conversion already recorded")
)

// Type names a work queue. TypeNone means the user is in no queue.
type Type string

const (
	TypeUnsignedUsers       Type = "unsigned_users"
	TypeOutstandingRequests Type = "outstanding_requests"
	TypeNone                Type = ""
)

func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeUnsignedUsers, TypeOutstandingRequests, TypeNone:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown queue type %q", ErrInvalidArgument, s)
	}
}

// UserCallScore is the per-user scoring projection. At most one per user.
// IsActive=false means the user left the pipeline and is not re-enqueued
// without an explicit reset.
type UserCallScore struct {
	UserID               string        `json:"user_id" db:"user_id"`
	CurrentScore         int           `json:"current_score" db:"current_score"`
	IsActive             bool          `json:"is_active" db:"is_active"`
	CurrentQueueType     Type          `json:"current_queue_type" db:"current_queue_type"`
	LastResetAt          *time.Time    `json:"last_reset_at,omitempty" db:"last_reset_at"`
	LastOutcome          outcomes.Type `json:"last_outcome,omitempty" db:"last_outcome"`
	TotalAttempts        int           `json:"total_attempts" db:"total_attempts"`
	ConsecutiveNoAnswers int           `json:"consecutive_no_answers" db:"consecutive_no_answers"`
	LastCallAt           *time.Time    `json:"last_call_at,omitempty" db:"last_call_at"`
	NeedsReview          bool          `json:"needs_review" db:"needs_review"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
}

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryAssigned  EntryStatus = "assigned"
	EntryCompleted EntryStatus = "completed"
	EntryConverted EntryStatus = "converted"
	EntryInvalid   EntryStatus = "invalid"
)

// Open reports whether the entry still counts as queue membership.
func (s EntryStatus) Open() bool { return s == EntryPending || s == EntryAssigned }

// Entry is one user's membership in one queue. Lower PriorityScore is called first.
type Entry struct {
	ID            string      `json:"id" db:"id"`
	UserID        string      `json:"user_id" db:"user_id"`
	QueueType     Type        `json:"queue_type" db:"queue_type"`
	PriorityScore int         `json:"priority_score" db:"priority_score"`
	Status        EntryStatus `json:"status" db:"status"`
	QueueReason   string      `json:"queue_reason,omitempty" db:"queue_reason"`
	NextAttemptAt *time.Time  `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

type ConversionType string

const (
	ConversionSigned                ConversionType = "signed"
	ConversionRequirementsCompleted ConversionType = "requirements_completed"
	ConversionOptedOut              ConversionType = "opted_out"
	ConversionNoLongerEligible      ConversionType = "no_longer_eligible"
	ConversionMaxScoreReached       ConversionType = "max_score_reached"
)

func (t ConversionType) Valid() bool {
	switch t {
	case ConversionSigned, ConversionRequirementsCompleted, ConversionOptedOut, ConversionNoLongerEligible, ConversionMaxScoreReached:
		return true
	default:
		return false
	}
}

// ConversionSource tells how a conversion was written.
type ConversionSource string

const (
	SourceDisposition ConversionSource = "disposition"
	SourceTransition  ConversionSource = "queue_transition"
	SourceLeakMonitor ConversionSource = "leak_monitor"
)

// Conversion is an append-only ledger row: this user left the pipeline, and why.
type Conversion struct {
	ID                string           `json:"id" db:"id"`
	UserID            string           `json:"user_id" db:"user_id"`
	PreviousQueueType Type             `json:"previous_queue_type" db:"previous_queue_type"`
	ConversionType    ConversionType   `json:"conversion_type" db:"conversion_type"`
	ConversionReason  string           `json:"conversion_reason,omitempty" db:"conversion_reason"`
	FinalScore        int              `json:"final_score" db:"final_score"`
	TotalAttempts     int              `json:"total_attempts" db:"total_attempts"`
	ConvertedAt       time.Time        `json:"converted_at" db:"converted_at"`
	PrimaryAgentID    string           `json:"primary_agent_id,omitempty" db:"primary_agent_id"`
	Source            ConversionSource `json:"source" db:"source"`
	RecoveredBy       string           `json:"recovered_by,omitempty" db:"recovered_by"`
	// TransitionID links the row to the transition entry that caused it.
	TransitionID string    `json:"transition_id,omitempty" db:"transition_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type CallbackStatus string

const (
	CallbackPending   CallbackStatus = "pending"
	CallbackAccepted  CallbackStatus = "accepted"
	CallbackCompleted CallbackStatus = "completed"
	CallbackCancelled CallbackStatus = "cancelled"
)

// Open reports whether a later call should close this callback.
func (s CallbackStatus) Open() bool { return s == CallbackPending || s == CallbackAccepted }

type Callback struct {
	ID                string         `json:"id" db:"id"`
	UserID            string         `json:"user_id" db:"user_id"`
	ScheduledFor      time.Time      `json:"scheduled_for" db:"scheduled_for"`
	Reason            string         `json:"reason,omitempty" db:"reason"`
	OriginalSessionID string         `json:"original_session_id,omitempty" db:"original_session_id"`
	Status            CallbackStatus `json:"status" db:"status"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// UserState is the real-world situation of a user as reported by the
// onboarding system. It is the source of truth the monitor re-derives from.
type UserState struct {
	UserID                string     `json:"user_id"`
	HasSignature          bool       `json:"has_signature"`
	PendingRequirements   int        `json:"pending_requirements"`
	OptedOut              bool       `json:"opted_out"`
	Eligible              bool       `json:"eligible"`
	RequirementsChangedAt *time.Time `json:"requirements_changed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// StateSource reads UserState. Implementations return ErrUserStateNotFound
// for unknown users.
type StateSource interface {
	UserState(ctx context.Context, userID string) (UserState, error)
}
