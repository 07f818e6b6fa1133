package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/calls"
)

type memoryState struct {
	scores      map[string]UserCallScore
	entries     map[string]Entry
	conversions []Conversion
	callbacks   map[string]Callback
	transitions *audit.MemoryRepo
	sessions    *calls.MemoryRepo
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		scores:      make(map[string]UserCallScore, len(s.scores)),
		entries:     make(map[string]Entry, len(s.entries)),
		conversions: make([]Conversion, len(s.conversions)),
		callbacks:   make(map[string]Callback, len(s.callbacks)),
		transitions: s.transitions.Clone(),
		sessions:    s.sessions.Clone(),
	}
	for k, v := range s.scores {
		out.scores[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	copy(out.conversions, s.conversions)
	for k, v := range s.callbacks {
		out.callbacks[k] = v
	}
	return out
}

// MemoryStore is a copy-on-begin Store for tests and local runs. A
// transaction works on a private copy that replaces the committed state only
// when fn returns nil. Transactions are serialized.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState

	// Fail, when set, is consulted before every write; a non-nil error aborts it.
	Fail func(op string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		scores:      map[string]UserCallScore{},
		entries:     map[string]Entry{},
		callbacks:   map[string]Callback{},
		transitions: audit.NewMemoryRepo(),
		sessions:    calls.NewMemoryRepo(),
	}}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	tx := &memoryTx{st: &work, fail: s.Fail}
	defer func() {
		if p := recover(); p != nil {
			panic(p)
		}
		if err == nil {
			s.state = work
		}
	}()
	return fn(ctx, tx)
}

// Conversions returns every committed conversion in insertion order.
func (s *MemoryStore) Conversions() []Conversion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversion, len(s.state.conversions))
	copy(out, s.state.conversions)
	return out
}

// Transitions returns every committed transition entry.
func (s *MemoryStore) Transitions() []audit.TransitionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.transitions.Entries()
}

func (s *MemoryStore) Callbacks(userID string) []Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Callback
	for _, cb := range s.state.callbacks {
		if cb.UserID == userID {
			out = append(out, cb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memoryTx struct {
	st   *memoryState
	fail func(op string) error
}

func (t *memoryTx) check(op string) error {
	if t.fail == nil {
		return nil
	}
	return t.fail(op)
}

func (t *memoryTx) GetScore(_ context.Context, userID string) (UserCallScore, error) {
	s, ok := t.st.scores[userID]
	if !ok {
		return UserCallScore{}, ErrNotFound
	}
	return s, nil
}

func (t *memoryTx) UpsertScore(_ context.Context, s UserCallScore) error {
	if err := t.check("upsert_score"); err != nil {
		return err
	}
	if s.UserID == "" || s.CurrentScore < 0 {
		return ErrInvalidArgument
	}
	t.st.scores[s.UserID] = s
	return nil
}

func (t *memoryTx) GetOpenEntry(_ context.Context, userID string) (Entry, error) {
	for _, e := range t.st.entries {
		if e.UserID == userID && e.Status.Open() {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (t *memoryTx) SaveEntry(_ context.Context, e Entry) error {
	if err := t.check("save_entry"); err != nil {
		return err
	}
	if e.ID == "" || e.UserID == "" {
		return ErrInvalidArgument
	}
	if e.Status.Open() {
		for _, other := range t.st.entries {
			if other.ID != e.ID && other.UserID == e.UserID && other.Status.Open() {
				return ErrInvalidArgument
			}
		}
	}
	t.st.entries[e.ID] = e
	return nil
}

func (t *memoryTx) InsertConversion(_ context.Context, c Conversion) error {
	if err := t.check("insert_conversion"); err != nil {
		return err
	}
	if c.ID == "" || c.UserID == "" || !c.ConversionType.Valid() {
		return ErrInvalidArgument
	}
	if c.TransitionID != "" {
		for _, existing := range t.st.conversions {
			if existing.TransitionID == c.TransitionID {
				return ErrConversionConflict
			}
		}
	}
	t.st.conversions = append(t.st.conversions, c)
	return nil
}

func (t *memoryTx) ConversionsBetween(_ context.Context, userID string, from, to time.Time) ([]Conversion, error) {
	var out []Conversion
	for _, c := range t.st.conversions {
		if c.UserID == userID && !c.ConvertedAt.Before(from) && !c.ConvertedAt.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *memoryTx) GetCallback(_ context.Context, id string) (Callback, error) {
	cb, ok := t.st.callbacks[id]
	if !ok {
		return Callback{}, ErrNotFound
	}
	return cb, nil
}

func (t *memoryTx) UpsertCallback(_ context.Context, cb Callback) error {
	if err := t.check("upsert_callback"); err != nil {
		return err
	}
	if cb.ID == "" || cb.UserID == "" {
		return ErrInvalidArgument
	}
	t.st.callbacks[cb.ID] = cb
	return nil
}

func (t *memoryTx) CompleteOpenCallbacks(_ context.Context, userID string, at time.Time) (int, error) {
	if err := t.check("complete_callbacks"); err != nil {
		return 0, err
	}
	n := 0
	for id, cb := range t.st.callbacks {
		if cb.UserID != userID || !cb.Status.Open() {
			continue
		}
		done := at.UTC()
		cb.Status = CallbackCompleted
		cb.CompletedAt = &done
		t.st.callbacks[id] = cb
		n++
	}
	return n, nil
}

func (t *memoryTx) Transitions() audit.Repository { return t.st.transitions }

func (t *memoryTx) Sessions() calls.Repository { return t.st.sessions }
