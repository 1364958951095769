package session

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by store operations after Close.
var ErrClosed = errors.New("session: store is closed")

// Store persists session state. Load returns (nil, nil) when the
// session does not exist. Persist is last-write-wins; concurrent turns
// on the same session are not serialized by the store.
type Store interface {
	Load(ctx context.Context, sessionID, userID string) (*State, error)
	Persist(ctx context.Context, state *State) error
	Reset(ctx context.Context, sessionID, userID string) error
	Close() error
}

// MemoryStore is an in-process Store for tests and single-node setups.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
	closed bool
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func storeKey(sessionID, userID string) string {
	return sessionID + "\x00" + userID
}

// Load returns a copy of the stored state, or nil if absent.
func (s *MemoryStore) Load(_ context.Context, sessionID, userID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	st, ok := s.states[storeKey(sessionID, userID)]
	if !ok {
		return nil, nil
	}
	out := st
	out.Context = cloneContext(st.Context)
	return &out, nil
}

// Persist stores a copy of state, replacing any previous version.
func (s *MemoryStore) Persist(_ context.Context, state *State) error {
	if state == nil {
		return errors.New("session: state is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	st := *state
	st.Context = cloneContext(state.Context)
	s.states[storeKey(state.SessionID, state.UserID)] = st
	return nil
}

// Reset removes the session. Resetting an absent session is a no-op.
func (s *MemoryStore) Reset(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.states, storeKey(sessionID, userID))
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
