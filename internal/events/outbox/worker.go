package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vendcore/internal/events"
	"vendcore/internal/platform/metrics"
	"vendcore/pkg/domain"
)

// Worker polls the outbox and hands pending events to a publisher. A crash
// between publish and mark-published re-publishes on the next pass, which is
// where the at-least-once guarantee comes from.
type Worker struct {
	store        Store
	publisher    events.Publisher
	log          *slog.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(w *Worker) { w.log = log }
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollInterval = d }
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) { w.batchSize = n }
}

func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) { w.maxAttempts = n }
}

// NewWorker validates its collaborators up front; a worker without a store or
// publisher is a programming error, not a runtime condition.
func NewWorker(store Store, publisher events.Publisher, opts ...WorkerOption) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("outbox store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	w := &Worker{
		store:        store,
		publisher:    publisher,
		log:          slog.Default(),
		pollInterval: time.Second,
		batchSize:    100,
		maxAttempts:  5,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if w.batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	if w.maxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive")
	}
	return w, nil
}

// Run polls until ctx is cancelled. Batch errors are logged, not fatal: a
// broker outage should stall publication, not kill the worker.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessBatch(ctx); err != nil {
				w.log.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessBatch drains one batch of pending rows. Exported so tests and
// cutover tooling can drive the worker without the ticker.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	pending, err := w.store.Pending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("load pending events: %w", err)
	}
	w.metrics.SetOutboxPending(len(pending))
	for _, row := range pending {
		if err := w.store.MarkProcessing(ctx, row.Event.ID); err != nil {
			// Another worker claimed it first.
			w.log.Debug("skipping contended outbox row", "event_id", row.Event.ID.String())
			continue
		}
		if err := w.publisher.Publish(ctx, row.Event); err != nil {
			w.log.Warn("outbox publish failed",
				"event_id", row.Event.ID.String(),
				"event_type", string(row.Event.Type),
				"attempt", row.Attempts+1,
				"error", err,
			)
			if markErr := w.store.MarkFailed(ctx, row.Event.ID, err.Error(), w.maxAttempts); markErr != nil {
				w.log.Error("failed to record outbox failure", "event_id", row.Event.ID.String(), "error", markErr)
			}
			continue
		}
		if err := w.store.MarkPublished(ctx, row.Event.ID); err != nil {
			// The event went out; the row will be re-published next pass and
			// consumers dedupe on ID.
			w.log.Error("failed to mark outbox row published", "event_id", row.Event.ID.String(), "error", err)
			continue
		}
		w.metrics.IncEventPublished(string(row.Event.Type))
		w.metrics.ObserveOutboxPublish(time.Since(row.CreatedAt).Seconds())
	}
	return nil
}

// ReplayFilter selects stored events for re-publication.
type ReplayFilter struct {
	AggregateID string
	EventType   domain.EventType
	Limit       int
}

// Replay re-publishes historical events, for consumer recovery and back-fill.
// Replayed deliveries look identical to first deliveries; idempotent
// consumers make that safe.
func Replay(ctx context.Context, store Store, filter ReplayFilter, publisher events.Publisher) (int, error) {
	var (
		history []domain.Event
		err     error
	)
	switch {
	case filter.AggregateID != "":
		history, err = store.History(ctx, filter.AggregateID)
	case filter.EventType != "":
		history, err = store.HistoryByType(ctx, filter.EventType, filter.Limit)
	default:
		return 0, fmt.Errorf("replay filter must set an aggregate id or event type")
	}
	if err != nil {
		return 0, fmt.Errorf("load replay history: %w", err)
	}
	if err := publisher.PublishBatch(ctx, history); err != nil {
		return 0, fmt.Errorf("replay publish: %w", err)
	}
	return len(history), nil
}
