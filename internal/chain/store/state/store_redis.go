package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
)

const stateKeyPrefix = "authchain:state:"

// RedisStore keeps each state as a JSON value whose key expires with the
// state. Execute and DeleteVersion run under WATCH so a concurrent write
// aborts the transaction.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

type RedisOption func(*RedisStore)

func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getter is satisfied by both *redis.Client and the *redis.Tx of a WATCH.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func stateKey(stateID id.StateID) string {
	return stateKeyPrefix + stateID.String()
}

func (s *RedisStore) Create(ctx context.Context, st *models.State) error {
	data, ttl, err := s.encode(st)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, stateKey(st.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("create state: %w", err)
	}
	if !ok {
		return fmt.Errorf("state %s exists: %w", st.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, stateID id.StateID) (*models.State, error) {
	return s.read(ctx, s.client, stateID)
}

func (s *RedisStore) Execute(ctx context.Context, stateID id.StateID, expectedVersion int64, mutate Mutator) (*models.State, error) {
	var saved *models.State
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.read(ctx, tx, stateID)
		if err != nil {
			return err
		}
		if err := checkVersion(current, expectedVersion); err != nil {
			return err
		}
		next, err := apply(current, mutate)
		if err != nil {
			return err
		}
		data, ttl, err := s.encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, stateKey(stateID), data, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		saved = next
		return nil
	}, stateKey(stateID))
	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("state %s changed concurrently: %w", stateID, sentinel.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *RedisStore) DeleteVersion(ctx context.Context, stateID id.StateID, version int64) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.read(ctx, tx, stateID)
		if err != nil {
			return err
		}
		if err := checkVersion(current, version); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, stateKey(stateID))
			return nil
		})
		return err
	}, stateKey(stateID))
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("state %s changed concurrently: %w", stateID, sentinel.ErrConflict)
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, stateID id.StateID) error {
	if err := s.client.Del(ctx, stateKey(stateID)).Err(); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (s *RedisStore) read(ctx context.Context, c getter, stateID id.StateID) (*models.State, error) {
	data, err := c.Get(ctx, stateKey(stateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errNotFound(stateID)
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	var st models.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if expired(&st, s.now()) {
		return nil, errNotFound(stateID)
	}
	return &st, nil
}

// encode returns the payload and the key TTL derived from ExpiresAt. Zero
// means no expiry.
func (s *RedisStore) encode(st *models.State) ([]byte, time.Duration, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, 0, fmt.Errorf("encode state: %w", err)
	}
	var ttl time.Duration
	if !st.ExpiresAt.IsZero() {
		ttl = st.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return nil, 0, fmt.Errorf("state %s already expired: %w", st.ID, sentinel.ErrExpired)
		}
	}
	return data, ttl, nil
}
