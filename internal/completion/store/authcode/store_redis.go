package authcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"authchain/internal/completion/models"
	"authchain/pkg/platform/sentinel"
)

const codeKeyPrefix = "authchain:code:"

// RedisStore keeps codes until they expire. Consume uses GETDEL so a code
// can be redeemed by exactly one caller across instances.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, record *models.AuthorizationCodeRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode authorization code: %w", err)
	}
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired: %w", sentinel.ErrExpired)
	}
	ok, err := s.client.SetNX(ctx, codeKeyPrefix+record.Code, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("store authorization code: %w", err)
	}
	if !ok {
		return fmt.Errorf("authorization code exists: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) FindByCode(ctx context.Context, code string) (*models.AuthorizationCodeRecord, error) {
	data, err := s.client.Get(ctx, codeKeyPrefix+code).Bytes()
	return decodeCode(data, err)
}

func (s *RedisStore) Consume(ctx context.Context, code, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error) {
	record, err := decodeCode(s.client.GetDel(ctx, codeKeyPrefix+code).Bytes())
	if err != nil {
		return nil, err
	}
	if err := record.ValidateForConsume(redirectURI, now); err != nil {
		return nil, translateConsumeError(err)
	}
	record.MarkUsed()
	return record, nil
}

func decodeCode(data []byte, err error) (*models.AuthorizationCodeRecord, error) {
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load authorization code: %w", err)
	}
	var record models.AuthorizationCodeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode authorization code: %w", err)
	}
	return &record, nil
}
