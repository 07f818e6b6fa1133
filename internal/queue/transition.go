package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/outcomes"
	"outreach-platform/internal/scoring"
)

// TransitionInput is one disposition applied to one user's queue state.
type TransitionInput struct {
	UserID    string
	AgentID   string
	SessionID string

	Outcome outcomes.Type
	Rule    outcomes.ScoringRule
	Result  outcomes.Result

	// Score is nil when scoring degraded; the score row is then left as-is.
	Score *scoring.PriorityScore
	// Existing is the user's score record, nil on the first contact.
	Existing *UserCallScore

	QueueType Type
	Now       time.Time
}

type TransitionResult struct {
	Converted       bool                  `json:"converted"`
	Conversion      *Conversion           `json:"conversion,omitempty"`
	Score           UserCallScore         `json:"score"`
	Entry           *Entry                `json:"entry,omitempty"`
	Callback        *Callback             `json:"callback,omitempty"`
	ClosedCallbacks int                   `json:"closed_callbacks"`
	Transition      audit.TransitionEntry `json:"transition"`
}

// TransitionEvent is a queue movement that happened outside a disposition,
// e.g. a user signing through a magic link.
type TransitionEvent struct {
	UserID     string    `json:"user_id"`
	FromQueue  Type      `json:"from_queue"`
	ToQueue    Type      `json:"to_queue"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Transitioner owns every write to queue membership, score records,
// callbacks and the conversion ledger.
type Transitioner struct {
	store  Store
	states StateSource
	log    *slog.Logger
	clock  func() time.Time
}

func NewTransitioner(store Store, states StateSource, log *slog.Logger) *Transitioner {
	if log == nil {
		log = slog.Default()
	}
	return &Transitioner{store: store, states: states, log: log, clock: time.Now}
}

func (t *Transitioner) now() time.Time { return t.clock().UTC() }

// Apply writes the queue consequences of one disposition inside tx.
// The caller owns the transaction; any error must abort it.
func (t *Transitioner) Apply(ctx context.Context, tx Tx, in TransitionInput) (TransitionResult, error) {
	if in.UserID == "" {
		return TransitionResult{}, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	now := in.Now.UTC()
	if in.Now.IsZero() {
		now = t.now()
	}

	var out TransitionResult

	closed, err := tx.CompleteOpenCallbacks(ctx, in.UserID, now)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("close callbacks: %w", err)
	}
	out.ClosedCallbacks = closed

	rec := UserCallScore{UserID: in.UserID, IsActive: true, CurrentQueueType: in.QueueType, CreatedAt: now}
	if in.Existing != nil {
		rec = *in.Existing
	}
	inactive := !rec.IsActive

	entry, hasEntry, err := openEntry(ctx, tx, in.UserID)
	if err != nil {
		return TransitionResult{}, err
	}
	fromQueue := rec.CurrentQueueType
	if hasEntry {
		fromQueue = entry.QueueType
	}

	finalScore := rec.CurrentScore
	if in.Score != nil {
		finalScore = in.Score.FinalScore
	}
	verdict := EvaluateConversion(ConversionInput{
		Outcome:    in.Outcome,
		Rule:       &in.Rule,
		Hint:       in.Result.Conversion,
		FinalScore: finalScore,
		FromQueue:  fromQueue,
		ToQueue:    in.QueueType,
	})

	rec.TotalAttempts++
	rec.LastOutcome = in.Outcome
	rec.LastCallAt = &now
	if in.Outcome == outcomes.TypeNoAnswer {
		rec.ConsecutiveNoAnswers++
	} else {
		rec.ConsecutiveNoAnswers = 0
	}
	rec.UpdatedAt = now
	if in.Score != nil {
		rec.CurrentScore = in.Score.FinalScore
		if in.Score.FreshStart {
			rec.LastResetAt = &now
		}
	}

	transitionID := uuid.NewString()
	toQueue := in.QueueType

	if verdict.Convert {
		toQueue = TypeNone
		conv := Conversion{
			ID:                uuid.NewString(),
			UserID:            in.UserID,
			PreviousQueueType: fromQueue,
			ConversionType:    verdict.Type,
			ConversionReason:  verdict.Reason,
			FinalScore:        rec.CurrentScore,
			TotalAttempts:     rec.TotalAttempts,
			ConvertedAt:       now,
			PrimaryAgentID:    in.AgentID,
			Source:            SourceDisposition,
			TransitionID:      transitionID,
			CreatedAt:         now,
		}
		if err := tx.InsertConversion(ctx, conv); err != nil {
			return TransitionResult{}, fmt.Errorf("insert conversion: %w", err)
		}
		out.Converted = true
		out.Conversion = &conv

		rec.IsActive = false
		rec.NeedsReview = false
		rec.CurrentQueueType = TypeNone
		if hasEntry {
			entry.Status = EntryConverted
			entry.QueueReason = string(verdict.Type)
			entry.UpdatedAt = now
		}
	} else if inactive {
		// Only Reset puts an inactive user back into a queue. The call is
		// still counted and audited.
		toQueue = TypeNone
		rec.CurrentQueueType = TypeNone
		hasEntry = false
	} else {
		rec.CurrentQueueType = in.QueueType
		if in.Score != nil {
			rec.NeedsReview = scoring.NeedsReview(in.Score.FinalScore, in.Rule)
		}
		if !hasEntry {
			entry = Entry{ID: uuid.NewString(), UserID: in.UserID, CreatedAt: now}
			hasEntry = true
		}
		entry.QueueType = in.QueueType
		entry.PriorityScore = rec.CurrentScore
		entry.QueueReason = string(in.Outcome)
		entry.UpdatedAt = now
		if in.Result.CallbackAt != nil {
			// The callback timer re-enqueues the user when it fires.
			entry.Status = EntryCompleted
			entry.NextAttemptAt = nil
		} else {
			next := in.Result.NextAttemptAt(now)
			entry.Status = EntryPending
			entry.NextAttemptAt = &next
		}

		if in.Result.CallbackAt != nil {
			cb := Callback{
				ID:                uuid.NewString(),
				UserID:            in.UserID,
				ScheduledFor:      in.Result.CallbackAt.UTC(),
				Reason:            callbackReason(in.Result),
				OriginalSessionID: in.SessionID,
				Status:            CallbackPending,
				CreatedAt:         now,
			}
			if err := tx.UpsertCallback(ctx, cb); err != nil {
				return TransitionResult{}, fmt.Errorf("upsert callback: %w", err)
			}
			out.Callback = &cb
		}
	}

	if hasEntry {
		if err := tx.SaveEntry(ctx, entry); err != nil {
			return TransitionResult{}, fmt.Errorf("save entry: %w", err)
		}
		e := entry
		out.Entry = &e
	}
	if err := tx.UpsertScore(ctx, rec); err != nil {
		return TransitionResult{}, fmt.Errorf("upsert score: %w", err)
	}
	out.Score = rec

	meta := map[string]any{"score": rec.CurrentScore, "attempts": rec.TotalAttempts}
	if in.Score == nil {
		meta["scoring_degraded"] = true
	} else {
		meta["fresh_start"] = in.Score.FreshStart
		meta["score_version"] = in.Score.Version
	}
	if verdict.Convert {
		meta["conversion_type"] = string(verdict.Type)
	} else if inactive {
		meta["inactive"] = true
	}
	entryRow, err := audit.Append(ctx, tx.Transitions(), audit.TransitionEntry{
		ID:               transitionID,
		UserID:           in.UserID,
		FromQueue:        string(fromQueue),
		ToQueue:          string(toQueue),
		Reason:           "disposition:" + string(in.Outcome),
		SessionID:        in.SessionID,
		OutcomeType:      string(in.Outcome),
		ConversionLogged: verdict.Convert,
		Metadata:         audit.EncodeMetadata(meta),
		OccurredAt:       now,
	}, now)
	if err != nil {
		return TransitionResult{}, err
	}
	out.Transition = entryRow
	return out, nil
}

func callbackReason(r outcomes.Result) string {
	for _, a := range r.NextActions {
		if a.Type == outcomes.ActionScheduleCallback && a.Reason != "" {
			return a.Reason
		}
	}
	return "callback requested"
}

func openEntry(ctx context.Context, tx Tx, userID string) (Entry, bool, error) {
	e, err := tx.GetOpenEntry(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get open entry: %w", err)
	}
	return e, true, nil
}

func getScore(ctx context.Context, tx Tx, userID string) (UserCallScore, bool, error) {
	s, err := tx.GetScore(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return UserCallScore{}, false, nil
	}
	if err != nil {
		return UserCallScore{}, false, fmt.Errorf("get score: %w", err)
	}
	return s, true, nil
}

// RecordTransition records a queue movement reported by another system and,
// when the user's state warrants it, the matching conversion in the same unit.
// A state lookup failure is logged and the move is still recorded; the
// reconciliation monitor re-checks it later.
func (t *Transitioner) RecordTransition(ctx context.Context, ev TransitionEvent) (TransitionResult, error) {
	if ev.UserID == "" {
		return TransitionResult{}, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	now := t.now()
	at := ev.OccurredAt.UTC()
	if ev.OccurredAt.IsZero() {
		at = now
	}

	var state *UserState
	if t.states != nil {
		st, err := t.states.UserState(ctx, ev.UserID)
		if err != nil {
			t.log.Warn("user state unavailable, recording transition without conversion check",
				"user_id", ev.UserID, "err", err)
		} else {
			state = &st
		}
	}
	verdict := EvaluateConversion(ConversionInput{FromQueue: ev.FromQueue, ToQueue: ev.ToQueue, State: state})

	var out TransitionResult
	err := t.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, ok, err := getScore(ctx, tx, ev.UserID)
		if err != nil {
			return err
		}
		if !ok {
			rec = UserCallScore{UserID: ev.UserID, IsActive: true, CreatedAt: now}
		}
		entry, hasEntry, err := openEntry(ctx, tx, ev.UserID)
		if err != nil {
			return err
		}

		transitionID := uuid.NewString()
		toQueue := ev.ToQueue
		rec.UpdatedAt = now

		switch {
		case verdict.Convert:
			toQueue = TypeNone
			conv := Conversion{
				ID:                uuid.NewString(),
				UserID:            ev.UserID,
				PreviousQueueType: ev.FromQueue,
				ConversionType:    verdict.Type,
				ConversionReason:  verdict.Reason,
				FinalScore:        rec.CurrentScore,
				TotalAttempts:     rec.TotalAttempts,
				ConvertedAt:       at,
				Source:            SourceTransition,
				TransitionID:      transitionID,
				CreatedAt:         now,
			}
			if err := tx.InsertConversion(ctx, conv); err != nil {
				return fmt.Errorf("insert conversion: %w", err)
			}
			out.Converted = true
			out.Conversion = &conv
			rec.IsActive = false
			rec.CurrentQueueType = TypeNone
			if hasEntry {
				entry.Status = EntryConverted
				entry.QueueReason = string(verdict.Type)
			}
		case ev.ToQueue == TypeNone:
			rec.CurrentQueueType = TypeNone
			if hasEntry {
				entry.Status = EntryInvalid
				entry.QueueReason = ev.Reason
			}
		default:
			if !rec.IsActive {
				return ErrUserInactive
			}
			rec.CurrentQueueType = ev.ToQueue
			if !hasEntry {
				entry = Entry{ID: uuid.NewString(), UserID: ev.UserID, Status: EntryPending, CreatedAt: now}
				hasEntry = true
			}
			entry.QueueType = ev.ToQueue
			entry.QueueReason = ev.Reason
		}

		if hasEntry {
			entry.UpdatedAt = now
			if err := tx.SaveEntry(ctx, entry); err != nil {
				return fmt.Errorf("save entry: %w", err)
			}
			e := entry
			out.Entry = &e
		}
		if err := tx.UpsertScore(ctx, rec); err != nil {
			return fmt.Errorf("upsert score: %w", err)
		}
		out.Score = rec

		row, err := audit.Append(ctx, tx.Transitions(), audit.TransitionEntry{
			ID:               transitionID,
			UserID:           ev.UserID,
			FromQueue:        string(ev.FromQueue),
			ToQueue:          string(toQueue),
			Reason:           ev.Reason,
			ConversionLogged: verdict.Convert,
			OccurredAt:       at,
		}, now)
		if err != nil {
			return err
		}
		out.Transition = row
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return out, nil
}

// Reset starts a user over in queueType: score 0, active, a fresh pending
// entry. It is the only way an inactive user re-enters a queue.
func (t *Transitioner) Reset(ctx context.Context, userID string, queueType Type, reason string) (TransitionResult, error) {
	if userID == "" || queueType == TypeNone {
		return TransitionResult{}, fmt.Errorf("%w: user id and queue type are required", ErrInvalidArgument)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual_reset"
	}
	now := t.now()

	var out TransitionResult
	err := t.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, ok, err := getScore(ctx, tx, userID)
		if err != nil {
			return err
		}
		from := TypeNone
		if ok && rec.IsActive {
			from = rec.CurrentQueueType
		}
		if !ok {
			rec = UserCallScore{UserID: userID, CreatedAt: now}
		}
		rec.CurrentScore = 0
		rec.IsActive = true
		rec.CurrentQueueType = queueType
		rec.LastResetAt = &now
		rec.ConsecutiveNoAnswers = 0
		rec.NeedsReview = false
		rec.UpdatedAt = now

		entry, hasEntry, err := openEntry(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !hasEntry {
			entry = Entry{ID: uuid.NewString(), UserID: userID, CreatedAt: now}
		}
		entry.QueueType = queueType
		entry.PriorityScore = 0
		entry.Status = EntryPending
		entry.QueueReason = reason
		entry.NextAttemptAt = nil
		entry.UpdatedAt = now

		if err := tx.SaveEntry(ctx, entry); err != nil {
			return fmt.Errorf("save entry: %w", err)
		}
		if err := tx.UpsertScore(ctx, rec); err != nil {
			return fmt.Errorf("upsert score: %w", err)
		}
		row, err := audit.Append(ctx, tx.Transitions(), audit.TransitionEntry{
			UserID:    userID,
			FromQueue: string(from),
			ToQueue:   string(queueType),
			Reason:    "reset:" + reason,
		}, now)
		if err != nil {
			return err
		}
		out = TransitionResult{Score: rec, Entry: &entry, Transition: row}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return out, nil
}

// Enqueue makes sure an active user has an open entry in queueType. An entry
// already open in the same queue is made due now and returned unchanged otherwise.
func (t *Transitioner) Enqueue(ctx context.Context, userID string, queueType Type, reason string) (Entry, error) {
	if userID == "" || queueType == TypeNone {
		return Entry{}, fmt.Errorf("%w: user id and queue type are required", ErrInvalidArgument)
	}
	now := t.now()

	var out Entry
	err := t.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, ok, err := getScore(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !ok {
			rec = UserCallScore{UserID: userID, IsActive: true, CurrentQueueType: queueType, CreatedAt: now, UpdatedAt: now}
			if err := tx.UpsertScore(ctx, rec); err != nil {
				return fmt.Errorf("upsert score: %w", err)
			}
		}
		if !rec.IsActive {
			return ErrUserInactive
		}

		entry, hasEntry, err := openEntry(ctx, tx, userID)
		if err != nil {
			return err
		}
		if hasEntry && entry.QueueType == queueType {
			entry.NextAttemptAt = &now
			entry.UpdatedAt = now
			if err := tx.SaveEntry(ctx, entry); err != nil {
				return fmt.Errorf("save entry: %w", err)
			}
			out = entry
			return nil
		}

		from := rec.CurrentQueueType
		if hasEntry {
			from = entry.QueueType
		} else {
			entry = Entry{ID: uuid.NewString(), UserID: userID, CreatedAt: now}
		}
		entry.QueueType = queueType
		entry.PriorityScore = rec.CurrentScore
		entry.Status = EntryPending
		entry.QueueReason = reason
		entry.NextAttemptAt = &now
		entry.UpdatedAt = now
		if err := tx.SaveEntry(ctx, entry); err != nil {
			return fmt.Errorf("save entry: %w", err)
		}

		if rec.CurrentQueueType != queueType {
			rec.CurrentQueueType = queueType
			rec.UpdatedAt = now
			if err := tx.UpsertScore(ctx, rec); err != nil {
				return fmt.Errorf("upsert score: %w", err)
			}
		}

		row, err := audit.Append(ctx, tx.Transitions(), audit.TransitionEntry{
			UserID:    userID,
			FromQueue: string(from),
			ToQueue:   string(queueType),
			Reason:    "enqueue:" + reason,
		}, now)
		if err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return out, nil
}

// CallbackDue re-enqueues the user behind a callback when it is still open.
// It reports false when the callback was already closed by a later call.
func (t *Transitioner) CallbackDue(ctx context.Context, callbackID string) (bool, error) {
	var cb Callback
	err := t.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		cb, err = tx.GetCallback(ctx, callbackID)
		return err
	})
	if err != nil {
		return false, err
	}
	if !cb.Status.Open() {
		return false, nil
	}

	queueType := TypeUnsignedUsers
	err = t.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, ok, err := getScore(ctx, tx, cb.UserID)
		if err != nil {
			return err
		}
		if ok && rec.CurrentQueueType != TypeNone {
			queueType = rec.CurrentQueueType
		}
		cb.Status = CallbackAccepted
		return tx.UpsertCallback(ctx, cb)
	})
	if err != nil {
		return false, err
	}
	if _, err := t.Enqueue(ctx, cb.UserID, queueType, "callback_due"); err != nil {
		return false, err
	}
	return true, nil
}
