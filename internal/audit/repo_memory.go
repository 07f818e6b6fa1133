package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory transition log useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu      sync.Mutex
	entries []TransitionEntry
	index   map[string]int
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{index: map[string]int{}} }

// Clone returns an independent copy, used for copy-on-begin transactions.
func (r *MemoryRepo) Clone() *MemoryRepo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := &MemoryRepo{entries: make([]TransitionEntry, len(r.entries)), index: make(map[string]int, len(r.index))}
	copy(out.entries, r.entries)
	for k, v := range r.index {
		out.index[k] = v
	}
	return out
}

func (r *MemoryRepo) Append(_ context.Context, e TransitionEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" || e.UserID == "" {
		return ErrInvalidEntry
	}
	if _, ok := r.index[e.ID]; ok {
		return ErrInvalidEntry
	}
	r.index[e.ID] = len(r.entries)
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (TransitionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return TransitionEntry{}, ErrNotFound
	}
	return r.entries[i], nil
}

func (r *MemoryRepo) ListPending(_ context.Context, from, to time.Time) ([]TransitionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TransitionEntry
	for _, e := range r.entries {
		if !e.Pending() || e.OccurredAt.Before(from) || e.OccurredAt.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (r *MemoryRepo) MarkConversionLogged(_ context.Context, id, recoveredBy string, at time.Time) error {
	return r.update(id, func(e *TransitionEntry) {
		e.ConversionLogged = true
		e.RecoveredBy = recoveredBy
		e.UpdatedAt = at.UTC()
	})
}

func (r *MemoryRepo) MarkVerifiedNoConversion(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(e *TransitionEntry) {
		e.VerifiedNoConversion = true
		e.UpdatedAt = at.UTC()
	})
}

func (r *MemoryRepo) MarkRecoveryFailed(_ context.Context, id, reason string, at time.Time) error {
	return r.update(id, func(e *TransitionEntry) {
		e.RecoveryFailed = true
		e.RecoveryError = reason
		e.UpdatedAt = at.UTC()
	})
}

// Entries returns a snapshot of every stored entry in append order.
func (r *MemoryRepo) Entries() []TransitionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TransitionEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *MemoryRepo) update(id string, fn func(e *TransitionEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return ErrNotFound
	}
	fn(&r.entries[i])
	return nil
}
