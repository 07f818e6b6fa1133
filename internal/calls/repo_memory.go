package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory session store for tests and local runs.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]Session
	outcomes []OutcomeRecord
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{sessions: map[string]Session{}} }

// Clone returns an independent copy, used for copy-on-begin transactions.
func (r *MemoryRepo) Clone() *MemoryRepo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := &MemoryRepo{sessions: make(map[string]Session, len(r.sessions)), outcomes: make([]OutcomeRecord, len(r.outcomes))}
	for k, v := range r.sessions {
		out.sessions[k] = v
	}
	copy(out.outcomes, r.outcomes)
	return out
}

// Put stores s as-is. Tests use it to seed sessions.
func (r *MemoryRepo) Put(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *MemoryRepo) GetSession(_ context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *MemoryRepo) GetSessionByCallSid(_ context.Context, callSid string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byCallSid(callSid)
}

func (r *MemoryRepo) byCallSid(callSid string) (Session, error) {
	if callSid == "" {
		return Session{}, ErrSessionNotFound
	}
	for _, s := range r.sessions {
		if s.CallSid == callSid {
			return s, nil
		}
	}
	return Session{}, ErrSessionNotFound
}

func (r *MemoryRepo) ApplyTerminalEvent(_ context.Context, ev TerminalEvent, now time.Time) (Session, error) {
	if err := validateEvent(ev); err != nil {
		return Session{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		s   Session
		err error
	)
	if ev.SessionID != "" {
		var ok bool
		s, ok = r.sessions[ev.SessionID]
		if !ok {
			err = ErrSessionNotFound
		}
	} else {
		s, err = r.byCallSid(ev.CallSid)
	}
	if errors.Is(err, ErrSessionNotFound) {
		if ev.UserID == "" {
			return Session{}, err
		}
		id := ev.SessionID
		if id == "" {
			id = uuid.NewString()
		}
		s = Session{ID: id, UserID: ev.UserID, Status: CallStatusQueued, CreatedAt: now.UTC()}
	}

	s = merge(s, ev, now)
	r.sessions[s.ID] = s
	return s, nil
}

func (r *MemoryRepo) MarkDisposed(_ context.Context, id, outcome string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Disposed() {
		return ErrAlreadyDisposed
	}
	at = at.UTC()
	s.DisposedAt = &at
	s.LastOutcome = outcome
	s.UpdatedAt = at
	r.sessions[id] = s
	return nil
}

func (r *MemoryRepo) InsertOutcome(_ context.Context, rec OutcomeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.outcomes {
		if o.SessionID == rec.SessionID {
			return ErrAlreadyDisposed
		}
	}
	r.outcomes = append(r.outcomes, rec)
	return nil
}

func (r *MemoryRepo) ListOutcomes(_ context.Context, userID string) ([]OutcomeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []OutcomeRecord
	for _, o := range r.outcomes {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	return out, nil
}
