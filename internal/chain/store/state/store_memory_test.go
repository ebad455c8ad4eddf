package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryStoreSuite struct {
	storeContract
	mem *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.mem = NewInMemoryStore(WithMemoryClock(s.clock))
	s.store = s.mem
}

func (s *InMemoryStoreSuite) TestPurgeExpired() {
	ctx := context.Background()
	keep := s.newState()
	drop := s.newState()
	drop.ExpiresAt = s.now.Add(time.Minute)
	s.Require().NoError(s.store.Create(ctx, keep))
	s.Require().NoError(s.store.Create(ctx, drop))

	s.now = s.now.Add(5 * time.Minute)
	n, err := s.mem.PurgeExpired(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	_, err = s.store.Load(ctx, keep.ID)
	s.NoError(err)
}

func (s *InMemoryStoreSuite) TestLoadReturnsCopy() {
	ctx := context.Background()
	st := s.newState()
	s.Require().NoError(s.store.Create(ctx, st))

	loaded, err := s.store.Load(ctx, st.ID)
	s.Require().NoError(err)
	loaded.RequestedLevels[0] = "tampered"

	again, err := s.store.Load(ctx, st.ID)
	s.Require().NoError(err)
	s.Equal("1", again.RequestedLevels[0])
}
