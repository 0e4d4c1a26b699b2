package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"vendcore/internal/platform/metrics"
	"vendcore/pkg/domain"
)

// Bus is the in-process dispatcher. Publish delivers synchronously to every
// handler subscribed to the event's type; one handler's failure (or panic)
// never prevents the others from running. Errors are joined and returned so
// the caller can decide whether the delivery needs a retry.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]Handler
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// BusOption configures a Bus.
type BusOption func(*Bus)

func WithBusLogger(log *slog.Logger) BusOption {
	return func(b *Bus) { b.log = log }
}

func WithBusMetrics(m *metrics.Metrics) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// NewBus constructs an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[domain.EventType][]Handler),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	_ Publisher  = (*Bus)(nil)
	_ Subscriber = (*Bus)(nil)
)

// Subscribe registers a handler for an event type. Registration order is
// delivery order.
func (b *Bus) Subscribe(eventType domain.EventType, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish dispatches one event to its subscribers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	b.metrics.IncEventPublished(string(event.Type))
	var errs []error
	for _, handler := range handlers {
		if err := b.dispatch(ctx, handler, event); err != nil {
			b.metrics.IncHandlerFailure(string(event.Type))
			b.log.Error("event handler failed",
				"event_id", event.ID.String(),
				"event_type", string(event.Type),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		b.metrics.IncEventDispatched(string(event.Type))
	}
	return errors.Join(errs...)
}

// PublishBatch dispatches events in order. All events are attempted even when
// earlier ones fail.
func (b *Bus) PublishBatch(ctx context.Context, batch []domain.Event) error {
	var errs []error
	for _, event := range batch {
		if err := b.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dispatch isolates handler panics so a broken subscriber degrades to an
// error instead of taking the publisher down.
func (b *Bus) dispatch(ctx context.Context, handler Handler, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}
