// Package attempts limits how often a guessable input (an OTP) may be
// submitted for one chain state.
package attempts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"authchain/internal/chain/models"
	"authchain/internal/ratelimit/metrics"
	rlmodels "authchain/internal/ratelimit/models"
)

// BucketStore counts attempts per key.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*rlmodels.RateLimitResult, error)
	Reset(ctx context.Context, key string) error
}

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

// Limiter enforces a maximum number of attempts per state and module.
type Limiter struct {
	store   BucketStore
	limit   int
	window  time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Limiter)

func WithLimit(limit int) Option {
	return func(l *Limiter) {
		if limit > 0 {
			l.limit = limit
		}
	}
}

func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func New(store BucketStore, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limit:  DefaultMaxAttempts,
		window: DefaultWindow,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one attempt and fails with TooManyAttempts once the limit is
// exceeded.
func (l *Limiter) Check(ctx context.Context, stateID, moduleID string) error {
	if l.metrics != nil {
		l.metrics.IncrementChecked(moduleID)
	}
	res, err := l.store.Allow(ctx, rlmodels.AttemptKey(stateID, moduleID), l.limit, l.window)
	if err != nil {
		return fmt.Errorf("check attempts: %w", err)
	}
	if res.Allowed {
		return nil
	}
	if l.metrics != nil {
		l.metrics.IncrementDenied(moduleID)
	}
	l.logger.WarnContext(ctx, "step attempt limit reached",
		"state_id", stateID,
		"module_id", moduleID,
		"retry_after", res.RetryAfter,
	)
	return models.NewChainError(models.KindTooManyAttempts,
		fmt.Sprintf("too many attempts, try again in %d seconds", res.RetryAfter), nil)
}

// Reset clears the counter, called once the step succeeds.
func (l *Limiter) Reset(ctx context.Context, stateID, moduleID string) error {
	return l.store.Reset(ctx, rlmodels.AttemptKey(stateID, moduleID))
}
