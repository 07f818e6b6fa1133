package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidEntry = errors.New("audit: invalid transition entry")
	ErrNotFound     = errors.New("audit: transition entry not found")
)

// Repository is the persistence contract for transition entries.
// There is no delete; updates are limited to the reconciliation flags.
type Repository interface {
	Append(ctx context.Context, e TransitionEntry) error
	Get(ctx context.Context, id string) (TransitionEntry, error)
	// ListPending returns entries in [from, to] still awaiting reconciliation,
	// oldest first.
	ListPending(ctx context.Context, from, to time.Time) ([]TransitionEntry, error)
	MarkConversionLogged(ctx context.Context, id, recoveredBy string, at time.Time) error
	MarkVerifiedNoConversion(ctx context.Context, id string, at time.Time) error
	MarkRecoveryFailed(ctx context.Context, id, reason string, at time.Time) error
}

// Prepare fills defaults and checks required fields before an Append.
func Prepare(e TransitionEntry, now time.Time) (TransitionEntry, error) {
	if e.UserID == "" {
		return TransitionEntry{}, ErrInvalidEntry
	}
	now = now.UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.Metadata == "" {
		e.Metadata = "{}"
	}
	return e, nil
}

// EncodeMetadata renders a flat metadata map as JSON. Encoding failures yield "{}".
func EncodeMetadata(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Append prepares e and writes it through repo. Pass the repository of the
// surrounding transaction so the entry commits with the queue change.
func Append(ctx context.Context, repo Repository, e TransitionEntry, now time.Time) (TransitionEntry, error) {
	if repo == nil {
		return TransitionEntry{}, errors.New("audit: repository not configured")
	}
	e, err := Prepare(e, now)
	if err != nil {
		return TransitionEntry{}, err
	}
	if err := repo.Append(ctx, e); err != nil {
		return TransitionEntry{}, fmt.Errorf("append transition: %w", err)
	}
	return e, nil
}
