// Package dedupe makes event handlers idempotent with respect to the event
// ID. Delivery is at-least-once, so every subscriber wraps its handlers with
// Middleware; a redelivered ID is skipped instead of double-applied.
package dedupe

import (
	"context"
	"log/slog"
	"sync"

	"vendcore/internal/events"
	"vendcore/internal/platform/metrics"
	"vendcore/pkg/domain"
)

// SeenStore records event IDs. FirstSeen returns true exactly once per live
// ID; the check-and-set must be atomic so concurrent deliveries of the same
// ID cannot both pass. Forget releases a claim, making the ID eligible for
// FirstSeen again.
type SeenStore interface {
	FirstSeen(ctx context.Context, eventID domain.EventID) (bool, error)
	Forget(ctx context.Context, eventID domain.EventID) error
}

// MemoryStore is the in-process SeenStore for tests and single-instance
// deployments.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[domain.EventID]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[domain.EventID]struct{})}
}

func (s *MemoryStore) FirstSeen(ctx context.Context, eventID domain.EventID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[eventID]; dup {
		return false, nil
	}
	s.seen[eventID] = struct{}{}
	return true, nil
}

func (s *MemoryStore) Forget(ctx context.Context, eventID domain.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, eventID)
	return nil
}

// Middleware wraps a handler with ID-based deduplication. The claim on the
// event ID is released when the handler fails, so a redelivery retries the
// event instead of skipping it. A store error fails the delivery (and so
// retries) rather than risking a double apply.
func Middleware(store SeenStore, log *slog.Logger, m *metrics.Metrics) func(events.Handler) events.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next events.Handler) events.Handler {
		return events.HandlerFunc(func(ctx context.Context, event domain.Event) error {
			first, err := store.FirstSeen(ctx, event.ID)
			if err != nil {
				return err
			}
			if !first {
				m.IncDuplicateEvent()
				log.Debug("skipping duplicate event",
					"event_id", event.ID.String(),
					"event_type", string(event.Type),
				)
				return nil
			}
			if err := next.Handle(ctx, event); err != nil {
				if fErr := store.Forget(ctx, event.ID); fErr != nil {
					log.Warn("failed to release dedupe claim",
						"event_id", event.ID.String(),
						"error", fErr,
					)
				}
				return err
			}
			return nil
		})
	}
}
