package user

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
)

// Error Contract:
// - Return sentinel.ErrNotFound when no user matches
// - Return sentinel.ErrConflict when a unique attribute is already taken
// - Return wrapped errors for infrastructure failures

// InMemoryUserStore keeps users in memory for tests and local runs.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[id.UserID]*models.User)}
}

func (s *InMemoryUserStore) Save(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ID == u.ID {
			continue
		}
		if (u.Email != "" && strings.EqualFold(existing.Email, u.Email)) ||
			(u.Username != "" && strings.EqualFold(existing.Username, u.Username)) {
			return fmt.Errorf("user attribute already taken: %w", sentinel.ErrConflict)
		}
	}
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	c := *u
	return &c, nil
}

// FindByIdentifier matches email or username, case-insensitively.
func (s *InMemoryUserStore) FindByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, identifier) || strings.EqualFold(u.Username, identifier) {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryUserStore) UpdatePasswordHash(_ context.Context, userID id.UserID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	u.PasswordHash = hash
	return nil
}
