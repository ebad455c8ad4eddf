package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByState(ctx context.Context, stateID string) ([]Event, error)
}

// Publisher captures structured audit events. Without a buffer, Emit writes
// through to the store; with one, a Worker drains events in the background
// and Emit never blocks the request path.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	inbox     chan Event
	closeOnce sync.Once
	done      chan struct{}
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithAsyncBuffer queues up to size events for a background worker.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		w := NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"action", event.Action,
			"state_id", event.StateID,
		)
	}
	return nil
}

func (p *Publisher) ListByState(ctx context.Context, stateID string) ([]Event, error) {
	return p.store.ListByState(ctx, stateID)
}

// Close stops accepting events and waits until the buffer is drained.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.inbox)
		<-p.done
	})
}
