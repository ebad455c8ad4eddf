//go:build integration

package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"authchain/internal/chain/models"
	"authchain/internal/chain/store/user"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
	"authchain/pkg/testutil/containers"
)

type PostgresUserStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *user.PostgresUserStore
}

func TestPostgresUserStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresUserStoreSuite))
}

func (s *PostgresUserStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = user.NewPostgres(s.postgres.DB)
}

func (s *PostgresUserStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "chain_users"))
}

func (s *PostgresUserStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	u := &models.User{ID: id.NewUserID(), Email: "Alice@Example.com", Username: "alice", PasswordHash: "h", PreferredLanguage: "nl"}
	s.Require().NoError(s.store.Save(ctx, u))

	byEmail, err := s.store.FindByIdentifier(ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Equal(u.ID, byEmail.ID)
	s.Equal("nl", byEmail.PreferredLanguage)

	byName, err := s.store.FindByIdentifier(ctx, "ALICE")
	s.Require().NoError(err)
	s.Equal(u.ID, byName.ID)

	s.Require().NoError(s.store.UpdatePasswordHash(ctx, u.ID, "new"))
	byID, err := s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("new", byID.PasswordHash)
}

func (s *PostgresUserStoreSuite) TestDuplicateEmailConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, &models.User{ID: id.NewUserID(), Email: "a@example.com"}))
	err := s.store.Save(ctx, &models.User{ID: id.NewUserID(), Email: "a@example.com"})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresUserStoreSuite) TestMissing() {
	_, err := s.store.FindByID(context.Background(), id.NewUserID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
