package queue

import (
	"context"
	"time"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/calls"
)

// Tx is one unit of work over the queue tables. Everything written through a
// Tx commits or rolls back together, including the transition log and the
// call session rows reached through Transitions and Sessions.
type Tx interface {
	// GetScore returns ErrNotFound for users without a score record.
	GetScore(ctx context.Context, userID string) (UserCallScore, error)
	UpsertScore(ctx context.Context, s UserCallScore) error

	// GetOpenEntry returns the user's pending or assigned entry, or ErrNotFound.
	GetOpenEntry(ctx context.Context, userID string) (Entry, error)
	SaveEntry(ctx context.Context, e Entry) error

	// InsertConversion returns ErrConversionConflict when a conversion for the
	// same transition already exists.
	InsertConversion(ctx context.Context, c Conversion) error
	ConversionsBetween(ctx context.Context, userID string, from, to time.Time) ([]Conversion, error)

	GetCallback(ctx context.Context, id string) (Callback, error)
	UpsertCallback(ctx context.Context, cb Callback) error
	// CompleteOpenCallbacks closes every pending or accepted callback for the user.
	CompleteOpenCallbacks(ctx context.Context, userID string, at time.Time) (int, error)

	Transitions() audit.Repository
	Sessions() calls.Repository
}

type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
