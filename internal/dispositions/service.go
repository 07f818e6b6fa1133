// Package dispositions records the outcome of one finished call: it runs the
// outcome handler, scores the user and applies the queue transition in a
// single unit of work, then hands follow-up actions to the dispatcher.
package dispositions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"outreach-platform/internal/calls"
	"outreach-platform/internal/outcomes"
	"outreach-platform/internal/queue"
	"outreach-platform/internal/scoring"
)

var (
	// ErrTransitionPersistence means nothing was written; the caller may retry.
	ErrTransitionPersistence = errors.New("dispositions: transition could not be persisted")
	ErrAlreadyDisposed       = calls.ErrAlreadyDisposed
	ErrSessionNotFound       = calls.ErrSessionNotFound
)

// Submission is one agent disposition for one call session.
type Submission struct {
	SessionID          string     `json:"session_id" validate:"required,max=64"`
	AgentID            string     `json:"agent_id" validate:"required,max=64"`
	OutcomeType        string     `json:"outcome_type" validate:"required"`
	QueueType          string     `json:"queue_type" validate:"omitempty,oneof=unsigned_users outstanding_requests"`
	Notes              string     `json:"notes" validate:"max=4000"`
	Reason             string     `json:"reason" validate:"max=500"`
	Confirmed          bool       `json:"confirmed"`
	CallbackAt         *time.Time `json:"callback_at"`
	DocumentsRequested []string   `json:"documents_requested" validate:"max=20"`
	NoAnswerCount      int        `json:"no_answer_count" validate:"min=0"`
}

// Disposed is the committed result of a disposition.
type Disposed struct {
	Definition outcomes.Definition    `json:"definition"`
	Result     outcomes.Result        `json:"result"`
	Warnings   []string               `json:"warnings,omitempty"`
	Score      *scoring.PriorityScore `json:"score,omitempty"`
	Transition queue.TransitionResult `json:"transition"`
	// Actions is what was handed to the ActionSink after commit.
	Actions []outcomes.Action `json:"actions"`
}

// ActionSink receives follow-up actions after the disposition committed.
type ActionSink interface {
	Publish(ctx context.Context, userID, sessionID string, actions []outcomes.Action) error
}

// Scorer computes priority scores. *scoring.Engine implements it.
type Scorer interface {
	Calculate(in scoring.Context) scoring.PriorityScore
}

type Service struct {
	store        queue.Store
	registry     *outcomes.Registry
	scorer       Scorer
	transitioner *queue.Transitioner
	states       queue.StateSource
	sink         ActionSink
	log          *slog.Logger
	clock        func() time.Time
}

type Options struct {
	Store        queue.Store
	Registry     *outcomes.Registry
	Scorer       Scorer
	Transitioner *queue.Transitioner
	// States is optional; it supplies requirement-change timestamps for fresh starts.
	States queue.StateSource
	// Sink is optional; without it actions are only returned.
	Sink ActionSink
	Log  *slog.Logger
}

func NewService(o Options) *Service {
	log := o.Log
	if log == nil {
		log = slog.Default()
	}
	reg := o.Registry
	if reg == nil {
		reg = outcomes.DefaultRegistry()
	}
	scorer := o.Scorer
	if scorer == nil {
		scorer = scoring.NewEngine(reg, log)
	}
	return &Service{
		store:        o.Store,
		registry:     reg,
		scorer:       scorer,
		transitioner: o.Transitioner,
		states:       o.States,
		sink:         o.Sink,
		log:          log,
		clock:        time.Now,
	}
}

// Dispose validates and executes the disposition, then persists the outcome
// record, the score and the queue transition atomically.
//
// Handler failures (unknown type, validation, execution) are returned as the
// outcomes package's typed errors and nothing is written. Storage failures
// return ErrTransitionPersistence and nothing is written.
func (s *Service) Dispose(ctx context.Context, sub Submission) (Disposed, error) {
	typ, err := outcomes.ParseType(sub.OutcomeType)
	if err != nil {
		return Disposed{}, err
	}
	now := s.clock().UTC()

	var (
		session calls.Session
		rec     queue.UserCallScore
		hasRec  bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx queue.Tx) error {
		var err error
		session, err = tx.Sessions().GetSession(ctx, sub.SessionID)
		if err != nil {
			return err
		}
		rec, err = tx.GetScore(ctx, session.UserID)
		switch {
		case err == nil:
			hasRec = true
		case errors.Is(err, queue.ErrNotFound):
		default:
			return err
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, calls.ErrSessionNotFound):
		return Disposed{}, ErrSessionNotFound
	default:
		return Disposed{}, fmt.Errorf("%w: %v", ErrTransitionPersistence, err)
	}
	if session.Disposed() {
		return Disposed{}, ErrAlreadyDisposed
	}

	oc := outcomes.Context{
		SessionID:            session.ID,
		UserID:               session.UserID,
		AgentID:              sub.AgentID,
		CallSid:              session.CallSid,
		DurationSeconds:      session.DurationSeconds,
		ConnectedAt:          session.ConnectedAt,
		EndedAt:              session.EndedAt,
		PreviousOutcome:      rec.LastOutcome,
		TotalAttempts:        rec.TotalAttempts,
		ConsecutiveNoAnswers: rec.ConsecutiveNoAnswers,
		Now:                  now,
	}
	payload := outcomes.BuildPayload(typ, outcomes.Submission{
		Notes:              sub.Notes,
		Reason:             sub.Reason,
		Confirmed:          sub.Confirmed,
		CallbackAt:         sub.CallbackAt,
		DocumentsRequested: sub.DocumentsRequested,
		NoAnswerCount:      sub.NoAnswerCount,
	})
	d, err := s.registry.Dispatch(oc, typ, payload)
	if err != nil {
		return Disposed{}, err
	}

	queueType := s.targetQueue(sub, rec, hasRec)
	state := s.userState(ctx, session.UserID)

	out := Disposed{Definition: d.Definition, Result: d.Result, Warnings: d.Warnings}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx queue.Tx) error {
		if err := tx.Sessions().MarkDisposed(ctx, session.ID, string(typ), now); err != nil {
			return err
		}
		if err := tx.Sessions().InsertOutcome(ctx, calls.OutcomeRecord{
			ID:          uuid.NewString(),
			SessionID:   session.ID,
			UserID:      session.UserID,
			AgentID:     sub.AgentID,
			OutcomeType: string(typ),
			Notes:       d.Result.Notes,
			CapturedAt:  now,
		}); err != nil {
			return err
		}

		// Re-read under the transaction's lock; the earlier read only fed the handler.
		current, err := tx.GetScore(ctx, session.UserID)
		var existing *queue.UserCallScore
		switch {
		case err == nil:
			existing = &current
		case errors.Is(err, queue.ErrNotFound):
		default:
			return err
		}

		sc := scoring.Context{
			CurrentQueueType: string(queueType),
			Outcome:          typ,
			TotalAttempts:    1,
			UserCreatedAt:    now,
		}
		if existing != nil {
			sc.CurrentScore = existing.CurrentScore
			sc.HasExistingRecord = true
			sc.PreviousQueueType = string(existing.CurrentQueueType)
			sc.LastOutcome = existing.LastOutcome
			sc.TotalAttempts = existing.TotalAttempts + 1
			sc.LastResetAt = existing.LastResetAt
			sc.UserCreatedAt = existing.CreatedAt
		}
		if state != nil {
			sc.RequirementsChangedAt = state.RequirementsChangedAt
			if !state.CreatedAt.IsZero() {
				sc.UserCreatedAt = state.CreatedAt
			}
		}
		out.Score = s.calculate(sc, session.UserID)

		res, err := s.transitioner.Apply(ctx, tx, queue.TransitionInput{
			UserID:    session.UserID,
			AgentID:   sub.AgentID,
			SessionID: session.ID,
			Outcome:   typ,
			Rule:      d.Definition.Rule,
			Result:    d.Result,
			Score:     out.Score,
			Existing:  existing,
			QueueType: queueType,
			Now:       now,
		})
		if err != nil {
			return err
		}
		out.Transition = res
		return nil
	})
	if err != nil {
		if errors.Is(err, calls.ErrAlreadyDisposed) {
			return Disposed{}, ErrAlreadyDisposed
		}
		s.log.Error("disposition rolled back", "session_id", session.ID, "user_id", session.UserID,
			"outcome", typ, "err", err)
		return Disposed{}, fmt.Errorf("%w: %v", ErrTransitionPersistence, err)
	}

	out.Actions = s.followUps(d.Result, out.Transition)
	s.publish(ctx, session, out.Actions)

	s.log.Info("call disposed",
		"session_id", session.ID,
		"user_id", session.UserID,
		"outcome", typ,
		"converted", out.Transition.Converted,
		"score", out.Transition.Score.CurrentScore,
		"needs_review", out.Transition.Score.NeedsReview,
	)
	return out, nil
}

func (s *Service) targetQueue(sub Submission, rec queue.UserCallScore, hasRec bool) queue.Type {
	if q, err := queue.ParseType(sub.QueueType); err == nil && q != queue.TypeNone {
		return q
	}
	if hasRec && rec.CurrentQueueType != queue.TypeNone {
		return rec.CurrentQueueType
	}
	return queue.TypeUnsignedUsers
}

func (s *Service) userState(ctx context.Context, userID string) *queue.UserState {
	if s.states == nil {
		return nil
	}
	st, err := s.states.UserState(ctx, userID)
	if err != nil {
		if !errors.Is(err, queue.ErrUserStateNotFound) {
			s.log.Warn("user state lookup failed", "user_id", userID, "err", err)
		}
		return nil
	}
	return &st
}

// calculate never lets a scoring failure abort the disposition; a nil score
// keeps the previous value.
func (s *Service) calculate(in scoring.Context, userID string) (ps *scoring.PriorityScore) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scoring failed, previous score kept", "user_id", userID, "panic", r)
			ps = nil
		}
	}()
	out := s.scorer.Calculate(in)
	return &out
}

func (s *Service) followUps(r outcomes.Result, tr queue.TransitionResult) []outcomes.Action {
	actions := make([]outcomes.Action, 0, len(r.NextActions)+1)
	actions = append(actions, r.NextActions...)
	if tr.Score.NeedsReview && !hasAction(actions, outcomes.ActionFlagForReview) {
		actions = append(actions, outcomes.Action{
			Type:     outcomes.ActionFlagForReview,
			Priority: outcomes.PriorityHigh,
			Reason:   "score_over_ceiling",
			Payload:  map[string]string{"score": fmt.Sprint(tr.Score.CurrentScore)},
		})
	}
	if tr.Callback != nil {
		for i := range actions {
			if actions[i].Type != outcomes.ActionScheduleCallback {
				continue
			}
			p := make(map[string]string, len(actions[i].Payload)+1)
			for k, v := range actions[i].Payload {
				p[k] = v
			}
			p["callback_id"] = tr.Callback.ID
			actions[i].Payload = p
		}
	}
	return actions
}

func hasAction(actions []outcomes.Action, t outcomes.ActionType) bool {
	for _, a := range actions {
		if a.Type == t {
			return true
		}
	}
	return false
}

func (s *Service) publish(ctx context.Context, session calls.Session, actions []outcomes.Action) {
	if s.sink == nil || len(actions) == 0 {
		return
	}
	if err := s.sink.Publish(ctx, session.UserID, session.ID, actions); err != nil {
		s.log.Error("publish next actions failed", "session_id", session.ID, "user_id", session.UserID,
			"actions", len(actions), "err", err)
	}
}
