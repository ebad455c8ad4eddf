//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"authchain/internal/audit"
	auditpg "authchain/internal/audit/store/postgres"
	"authchain/pkg/testutil/containers"
)

type PostgresAuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpg.Store
}

func TestPostgresAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditStoreSuite))
}

func (s *PostgresAuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpg.New(s.postgres.DB)
}

func (s *PostgresAuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "chain_audit_events"))
}

func (s *PostgresAuditStoreSuite) TestAppendAndListByState() {
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Timestamp: ts,
		StateID:   "state-1",
		UserID:    "user-1",
		ModuleID:  "otp",
		Action:    string(audit.EventStepAccepted),
		Levels:    []string{"1", "2"},
		ClientIP:  "10.0.0.1",
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{Timestamp: ts, StateID: "state-2", Action: string(audit.EventChainStarted)}))

	events, err := s.store.ListByState(ctx, "state-1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal([]string{"1", "2"}, events[0].Levels)
	s.Equal("otp", events[0].ModuleID)
	s.True(ts.Equal(events[0].Timestamp))
}
