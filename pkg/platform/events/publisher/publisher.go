// Package publisher appends registry events to the log.
//
// The default mode is synchronous and fail-closed: Emit blocks until the
// store accepts the event, and the calling operation must fail if it returns
// an error — a mutation without its event would break auditability. An async
// buffered mode exists for callers that prefer throughput over guarantees.
package publisher

import (
	"context"
	"log/slog"
	"sync"

	"attestry/pkg/platform/events"
)

type Publisher struct {
	store  events.Store
	logger *slog.Logger

	inbox chan events.Event
	wg    sync.WaitGroup
	once  sync.Once
}

type Option func(*Publisher)

// WithLogger sets a logger for async-mode error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithAsyncBuffer switches the publisher to buffered async emission. Events
// that do not fit the buffer are dropped (and logged); use the default sync
// mode where loss is unacceptable.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) { p.inbox = make(chan events.Event, size) }
}

func NewPublisher(store events.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit appends the event to the log. In sync mode the error is the store's;
// the caller must treat it as fatal for the surrounding operation.
func (p *Publisher) Emit(ctx context.Context, event events.Event) error {
	if p.inbox == nil {
		_, err := p.store.Append(ctx, event)
		return err
	}
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.Warn("event buffer full, dropping event",
				"type", string(event.Type),
			)
		}
	}
	return nil
}

// ListAfter exposes the replayable log to read-side consumers.
func (p *Publisher) ListAfter(ctx context.Context, after uint64, limit int) ([]events.Event, error) {
	return p.store.ListAfter(ctx, after, limit)
}

// Close drains the async buffer and stops the worker. No-op in sync mode.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.once.Do(func() { close(p.inbox) })
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		if _, err := p.store.Append(context.Background(), event); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to append event",
					"type", string(event.Type),
					"error", err,
				)
			}
		}
	}
}
