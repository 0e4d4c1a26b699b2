// Package events defines the cross-service domain-event protocol: the
// publish/subscribe contracts and an in-process bus. Delivery is
// at-least-once with per-aggregate ordering; handlers must be idempotent with
// respect to the event ID (see the dedupe package).
package events

import (
	"context"

	"vendcore/pkg/domain"
)

// Publisher accepts single or batched events for dispatch.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
	PublishBatch(ctx context.Context, events []domain.Event) error
}

// Handler reacts to one event. Returning an error marks the delivery failed
// for this handler only; other handlers still run.
type Handler interface {
	Handle(ctx context.Context, event domain.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event domain.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// Subscriber registers handlers per event type. Multiple handlers per type
// are supported with independent failure isolation.
type Subscriber interface {
	Subscribe(eventType domain.EventType, handler Handler)
}

// HistoryStore reads back previously recorded events for recovery and
// back-fill. The outbox store implements it.
type HistoryStore interface {
	History(ctx context.Context, aggregateID string) ([]domain.Event, error)
	HistoryByType(ctx context.Context, eventType domain.EventType, limit int) ([]domain.Event, error)
}
