//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"authchain/internal/ratelimit/models"
	"authchain/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisBucketStore
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedis(s.redis.Client)
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBucketStoreSuite) TestDeniesAfterLimit() {
	ctx := context.Background()
	key := models.AttemptKey("state-1", "otp")

	for i := range testLimit {
		result, err := s.store.Allow(ctx, key, testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit-i-1, result.Remaining)
	}

	result, err := s.store.Allow(ctx, key, testLimit, testWindow)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Positive(result.RetryAfter)

	count, err := s.store.GetCurrentCount(ctx, key)
	s.Require().NoError(err)
	s.Equal(testLimit+1, count)
}

func (s *RedisBucketStoreSuite) TestWindowIsSetOnce() {
	ctx := context.Background()
	key := models.AttemptKey("state-2", "otp")

	_, err := s.store.Allow(ctx, key, testLimit, testWindow)
	s.Require().NoError(err)
	_, err = s.store.Allow(ctx, key, testLimit, time.Hour)
	s.Require().NoError(err)

	ttl, err := s.redis.TTL(ctx, redisKeyPrefix+key)
	s.Require().NoError(err)
	s.LessOrEqual(ttl, testWindow)
}

func (s *RedisBucketStoreSuite) TestResetClearsCounter() {
	ctx := context.Background()
	key := models.AttemptKey("state-3", "password")

	_, err := s.store.AllowN(ctx, key, 3, testLimit, testWindow)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(ctx, key))

	count, err := s.store.GetCurrentCount(ctx, key)
	s.Require().NoError(err)
	s.Zero(count)
}
