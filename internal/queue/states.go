package queue

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"outreach-platform/pkg/utils"
)

// PostgresStateSource reads the user_states view maintained by onboarding.
type PostgresStateSource struct {
	db utils.DBTX
}

func NewPostgresStateSource(db utils.DBTX) *PostgresStateSource { return &PostgresStateSource{db: db} }

func (s *PostgresStateSource) UserState(ctx context.Context, userID string) (UserState, error) {
	const q = `
SELECT user_id, has_signature, pending_requirements, opted_out, eligible, requirements_changed_at, created_at
FROM user_states
WHERE user_id = $1
`
	var (
		st      UserState
		changed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, q, userID).Scan(
		&st.UserID,
		&st.HasSignature,
		&st.PendingRequirements,
		&st.OptedOut,
		&st.Eligible,
		&changed,
		&st.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserState{}, ErrUserStateNotFound
		}
		return UserState{}, err
	}
	st.RequirementsChangedAt = utils.TimePtr(changed)
	return st, nil
}

// MemoryStateSource is a settable StateSource for tests.
type MemoryStateSource struct {
	mu     sync.RWMutex
	states map[string]UserState
	// Err, when set, is returned by every lookup.
	Err error
}

func NewMemoryStateSource() *MemoryStateSource {
	return &MemoryStateSource{states: map[string]UserState{}}
}

func (m *MemoryStateSource) Put(st UserState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.UserID] = st
}

func (m *MemoryStateSource) UserState(_ context.Context, userID string) (UserState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return UserState{}, m.Err
	}
	st, ok := m.states[userID]
	if !ok {
		return UserState{}, ErrUserStateNotFound
	}
	return st, nil
}
