package audit

import "time"

// TransitionEntry records one queue movement for one user.
//
// Entries are append-only apart from the reconciliation flags, which only ever
// move from false to true. The transition log is the source of truth for
// "did a queue change happen"; the conversion ledger is checked against it.
type TransitionEntry struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// FromQueue and ToQueue hold queue type names; "" means no queue.
	FromQueue string `json:"from_queue" db:"from_queue"`
	ToQueue   string `json:"to_queue" db:"to_queue"`
	Reason    string `json:"reason,omitempty" db:"reason"`

	SessionID   string `json:"session_id,omitempty" db:"session_id"`
	OutcomeType string `json:"outcome_type,omitempty" db:"outcome_type"`

	ConversionLogged     bool   `json:"conversion_logged" db:"conversion_logged"`
	VerifiedNoConversion bool   `json:"verified_no_conversion" db:"verified_no_conversion"`
	RecoveredBy          string `json:"recovered_by,omitempty" db:"recovered_by"`
	RecoveryFailed       bool   `json:"recovery_failed" db:"recovery_failed"`
	RecoveryError        string `json:"recovery_error,omitempty" db:"recovery_error"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Pending reports whether the entry still awaits reconciliation.
func (e TransitionEntry) Pending() bool {
	return !e.ConversionLogged && !e.VerifiedNoConversion && !e.RecoveryFailed
}
