package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
)

type chainStateStore interface {
	Create(ctx context.Context, st *models.State) error
	Load(ctx context.Context, stateID id.StateID) (*models.State, error)
	Execute(ctx context.Context, stateID id.StateID, expectedVersion int64, mutate Mutator) (*models.State, error)
	DeleteVersion(ctx context.Context, stateID id.StateID, version int64) error
	Delete(ctx context.Context, stateID id.StateID) error
}

// storeContract is the behaviour every state store shares. Embedding suites
// set store and now in their setup.
type storeContract struct {
	suite.Suite
	store chainStateStore
	now   time.Time
}

func (s *storeContract) clock() time.Time { return s.now }

func (s *storeContract) newState() *models.State {
	return &models.State{
		ID:              id.NewStateID(),
		RequestedLevels: []string{"1", "2"},
		Request: models.NewOAuthProtocolRequest(&models.OAuthRequest{
			ClientID:    "app",
			RedirectURI: "https://app.example.com/cb",
		}),
		CreatedAt: s.now,
		UpdatedAt: s.now,
		ExpiresAt: s.now.Add(30 * time.Minute),
	}
}

func (s *storeContract) TestCreateAndLoad() {
	ctx := context.Background()
	st := s.newState()
	s.Require().NoError(s.store.Create(ctx, st))

	loaded, err := s.store.Load(ctx, st.ID)
	s.Require().NoError(err)
	s.Equal(st.ID, loaded.ID)
	s.Equal([]string{"1", "2"}, loaded.RequestedLevels)
	s.Equal("app", loaded.Request.OAuth.ClientID)

	s.ErrorIs(s.store.Create(ctx, st), sentinel.ErrConflict)
}

func (s *storeContract) TestLoadMissing() {
	_, err := s.store.Load(context.Background(), id.NewStateID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContract) TestExecuteBumpsVersion() {
	ctx := context.Background()
	st := s.newState()
	s.Require().NoError(s.store.Create(ctx, st))

	saved, err := s.store.Execute(ctx, st.ID, 0, func(cur *models.State) error {
		cur.Subject = &models.Subject{Email: "alice@example.com"}
		return nil
	})
	s.Require().NoError(err)
	s.Equal(int64(1), saved.Version)

	loaded, err := s.store.Load(ctx, st.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), loaded.Version)
	s.Equal("alice@example.com", loaded.Subject.Email)
}

func (s *storeContract) TestExecuteStaleVersionConflicts() {
	ctx := context.Background()
	st := s.newState()
	s.Require().NoError(s.store.Create(ctx, st))
	_, err := s.store.Execute(ctx, st.ID, 0, func(*models.State) error { return nil })
	s.Require().NoError(err)

	called := false
	_, err = s.store.Execute(ctx, st.ID, 0, func(*models.State) error {
		called = true
		return nil
	})
	s.ErrorIs(err, sentinel.ErrConflict)
	s.False(called)
}

func (s *storeContract) TestExecuteMutationErrorWritesNothing() {
	ctx := context.Background()
	st := s.newState()
	s.Require().NoError(s.store.Create(ctx, st))

	boom := errors.New("boom")
	_, err := s.store.Execute(ctx, st.ID, AnyVersion, func(cur *models.State) error {
		cur.AppID = "changed"
		return boom
	})
	s.ErrorIs(err, boom)

	loaded, err := s.store.Load(ctx, st.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), loaded.Version)
	s.Empty(loaded.AppID)
}

func (s *storeContract) TestConcurrentExecuteSingleWinner() {
	ctx := context.Background()
	st := s.newState()
	s.Require().NoError(s.store.Create(ctx, st))

	var (
		wins int32
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Go(func() {
			_, err := s.store.Execute(ctx, st.ID, 0, func(cur *models.State) error {
				cur.Results = append(cur.Results, models.ModuleResult{ModuleID: "otp", Level: "2", Completed: true})
				return nil
			})
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		})
	}
	wg.Wait()
	s.Equal(int32(1), wins)

	loaded, err := s.store.Load(ctx, st.ID)
	s.Require().NoError(err)
	s.Len(loaded.Results, 1)
}

func (s *storeContract) TestDeleteVersionExactlyOnce() {
	ctx := context.Background()
	st := s.newState()
	s.Require().NoError(s.store.Create(ctx, st))

	s.ErrorIs(s.store.DeleteVersion(ctx, st.ID, 5), sentinel.ErrConflict)
	s.Require().NoError(s.store.DeleteVersion(ctx, st.ID, 0))
	s.ErrorIs(s.store.DeleteVersion(ctx, st.ID, 0), sentinel.ErrNotFound)
	s.NoError(s.store.Delete(ctx, st.ID), "delete is idempotent")
}

func (s *storeContract) TestExpiredStateIsGone() {
	ctx := context.Background()
	st := s.newState()
	st.ExpiresAt = s.now.Add(time.Second)
	s.Require().NoError(s.store.Create(ctx, st))

	s.now = s.now.Add(2 * time.Second)
	_, err := s.store.Load(ctx, st.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
