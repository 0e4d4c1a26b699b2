// Package outbox persists domain events in the same unit of work as the
// aggregate mutation that produced them, then publishes them asynchronously.
// The rows double as the event history used for replay.
package outbox

import (
	"context"
	"time"

	"vendcore/pkg/domain"
)

// Status tracks a row through its publication lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// Row is one stored event plus its publication bookkeeping.
type Row struct {
	Event       domain.Event
	Status      Status
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Store is the outbox port. Append participates in a caller transaction when
// one is carried in ctx, which is what makes "mutation + events" atomic.
type Store interface {
	// Append records events as pending. It must be called inside the same
	// transaction as the data mutation the events describe.
	Append(ctx context.Context, events []domain.Event) error
	// Pending returns up to limit rows eligible for publication, oldest
	// first, so per-aggregate order is preserved.
	Pending(ctx context.Context, limit int) ([]Row, error)
	// MarkProcessing claims a pending row. Claiming an already-claimed row
	// fails so concurrent workers skip instead of double-publishing.
	MarkProcessing(ctx context.Context, eventID domain.EventID) error
	// MarkPublished finalizes a row after the broker accepted it.
	MarkPublished(ctx context.Context, eventID domain.EventID) error
	// MarkFailed returns a row to pending, or parks it as failed once
	// attempts reach maxAttempts.
	MarkFailed(ctx context.Context, eventID domain.EventID, reason string, maxAttempts int) error
	// PendingCount sizes the backlog for metrics.
	PendingCount(ctx context.Context) (int, error)

	// History returns every stored event for one aggregate, oldest first.
	History(ctx context.Context, aggregateID string) ([]domain.Event, error)
	// HistoryByType returns up to limit recent events of one type, oldest
	// first.
	HistoryByType(ctx context.Context, eventType domain.EventType, limit int) ([]domain.Event, error)
}
