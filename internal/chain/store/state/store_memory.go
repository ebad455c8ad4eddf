package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
)

// InMemoryStore keeps states in a map guarded by a single mutex.
type InMemoryStore struct {
	mu     sync.Mutex
	states map[id.StateID]*models.State
	now    func() time.Time
}

type MemoryOption func(*InMemoryStore)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		states: make(map[id.StateID]*models.State),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Create(_ context.Context, st *models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[st.ID]; ok {
		return fmt.Errorf("state %s exists: %w", st.ID, sentinel.ErrConflict)
	}
	s.states[st.ID] = st.Clone()
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, stateID id.StateID) (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.get(stateID)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

func (s *InMemoryStore) Execute(_ context.Context, stateID id.StateID, expectedVersion int64, mutate Mutator) (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.get(stateID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(current, expectedVersion); err != nil {
		return nil, err
	}
	next, err := apply(current, mutate)
	if err != nil {
		return nil, err
	}
	s.states[stateID] = next
	return next.Clone(), nil
}

func (s *InMemoryStore) DeleteVersion(_ context.Context, stateID id.StateID, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.get(stateID)
	if err != nil {
		return err
	}
	if err := checkVersion(current, version); err != nil {
		return err
	}
	delete(s.states, stateID)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, stateID id.StateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, stateID)
	return nil
}

// PurgeExpired drops states past their expiry and returns how many went.
func (s *InMemoryStore) PurgeExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for stateID, st := range s.states {
		if expired(st, now) {
			delete(s.states, stateID)
			n++
		}
	}
	return n, nil
}

// get must be called with mu held.
func (s *InMemoryStore) get(stateID id.StateID) (*models.State, error) {
	st, ok := s.states[stateID]
	if !ok {
		return nil, errNotFound(stateID)
	}
	if expired(st, s.now()) {
		delete(s.states, stateID)
		return nil, errNotFound(stateID)
	}
	return st, nil
}
