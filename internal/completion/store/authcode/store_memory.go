package authcode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"authchain/internal/completion/models"
	"authchain/pkg/platform/sentinel"
)

// translateConsumeError maps ValidateForConsume failures to sentinels.
func translateConsumeError(err error) error {
	switch {
	case err == nil:
		return nil
	case models.IsExpiredError(err):
		return fmt.Errorf("%s: %w", err, sentinel.ErrExpired)
	case models.IsUsedError(err):
		return fmt.Errorf("%s: %w", err, sentinel.ErrAlreadyUsed)
	default:
		return fmt.Errorf("%s: %w", err, sentinel.ErrInvalidState)
	}
}

// InMemoryStore stores authorization codes in memory for tests and single
// instance deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	codes map[string]*models.AuthorizationCodeRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{codes: make(map[string]*models.AuthorizationCodeRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.AuthorizationCodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[record.Code]; ok {
		return fmt.Errorf("authorization code exists: %w", sentinel.ErrConflict)
	}
	c := *record
	s.codes[record.Code] = &c
	return nil
}

func (s *InMemoryStore) FindByCode(_ context.Context, code string) (*models.AuthorizationCodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.codes[code]; ok {
		c := *record
		return &c, nil
	}
	return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
}

// Consume validates and marks the code used in one step.
func (s *InMemoryStore) Consume(_ context.Context, code, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	if err := record.ValidateForConsume(redirectURI, now); err != nil {
		return nil, translateConsumeError(err)
	}
	record.MarkUsed()
	c := *record
	return &c, nil
}

// DeleteExpired removes codes expired as of now.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for code, record := range s.codes {
		if !now.Before(record.ExpiresAt) {
			delete(s.codes, code)
			n++
		}
	}
	return n, nil
}
