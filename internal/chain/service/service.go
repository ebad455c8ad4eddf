// Package service is the chain orchestrator. It selects the next module,
// interprets its ModuleResult and commits every transition through the
// state store's per-state critical section. Modules run outside that
// section; only the resulting mutation runs inside it.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"authchain/internal/audit"
	"authchain/internal/chain/authtype"
	chainmetrics "authchain/internal/chain/metrics"
	"authchain/internal/chain/models"
	"authchain/internal/chain/store/state"
	"authchain/internal/chain/token"
	id "authchain/pkg/domain"
)

// StateStore persists chain states.
type StateStore interface {
	Create(ctx context.Context, st *models.State) error
	Load(ctx context.Context, stateID id.StateID) (*models.State, error)
	Execute(ctx context.Context, stateID id.StateID, expectedVersion int64, mutate state.Mutator) (*models.State, error)
	DeleteVersion(ctx context.Context, stateID id.StateID, version int64) error
	Delete(ctx context.Context, stateID id.StateID) error
}

// Chain is the configured module sequence.
type Chain interface {
	Modules() []*authtype.Module
	Module(moduleID string) (*authtype.Module, bool)
	DefaultLevels() []string
}

// Completer hands a finished chain to its protocol, or reports a failure
// through it.
type Completer interface {
	Complete(ctx context.Context, st *models.State) (*models.Response, error)
	ReturnError(ctx context.Context, st *models.State, cause error) (*models.Response, error)
}

// LinkResolver validates continuation tokens and loads their state.
type LinkResolver interface {
	Resolve(ctx context.Context, loader token.StateLoader, raw string) (*models.State, *token.Claims, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Outcome is what the transport renders after a chain operation.
type Outcome struct {
	StateID   id.StateID
	Response  *models.Response
	Completed bool
}

// Service orchestrates authentication chains.
type Service struct {
	states    StateStore
	chain     Chain
	completer Completer
	links     LinkResolver

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *chainmetrics.Metrics
	tracer         trace.Tracer
	now            func() time.Time

	stateTTL         time.Duration
	loginURL         string
	defaultCancelURL string
	uiServer         models.UIServer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *chainmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStateTTL sets the idle lifetime of a stored state.
func WithStateTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.stateTTL = ttl
		}
	}
}

// WithLoginURL sets the external login UI that drives ProcessStep.
func WithLoginURL(url string) Option {
	return func(s *Service) {
		s.loginURL = url
	}
}

// WithDefaultCancelURL is used when a state has no cancel URL or is gone.
func WithDefaultCancelURL(url string) Option {
	return func(s *Service) {
		s.defaultCancelURL = url
	}
}

func WithUIServer(ui models.UIServer) Option {
	return func(s *Service) {
		s.uiServer = ui
	}
}

func New(states StateStore, chain Chain, completer Completer, links LinkResolver, opts ...Option) *Service {
	s := &Service{
		states:           states,
		chain:            chain,
		completer:        completer,
		links:            links,
		logger:           slog.Default(),
		tracer:           otel.Tracer("authchain/chain"),
		now:              time.Now,
		stateTTL:         30 * time.Minute,
		defaultCancelURL: "/",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
