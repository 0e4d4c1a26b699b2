package outbox

import (
	"context"
	"sort"
	"sync"

	"vendcore/pkg/domain"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/requestcontext"
)

// MemoryStore keeps outbox rows in process. It backs unit tests and pairs
// with the memory aggregate stores.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[domain.EventID]*Row
	order []domain.EventID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[domain.EventID]*Row)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Append(ctx context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := requestcontext.Now(ctx)
	for _, event := range events {
		if _, exists := s.rows[event.ID]; exists {
			return sentinel.ErrConflict
		}
		s.rows[event.ID] = &Row{Event: event, Status: StatusPending, CreatedAt: now}
		s.order = append(s.order, event.ID)
	}
	return nil
}

func (s *MemoryStore) Pending(ctx context.Context, limit int) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, limit)
	for _, id := range s.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		row := s.rows[id]
		if row.Status == StatusPending {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkProcessing(ctx context.Context, eventID domain.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if row.Status != StatusPending {
		return sentinel.ErrInvalidState
	}
	row.Status = StatusProcessing
	row.Attempts++
	return nil
}

func (s *MemoryStore) MarkPublished(ctx context.Context, eventID domain.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	now := requestcontext.Now(ctx)
	row.Status = StatusPublished
	row.PublishedAt = &now
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, eventID domain.EventID, reason string, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	row.LastError = reason
	if row.Attempts >= maxAttempts {
		row.Status = StatusFailed
		return nil
	}
	row.Status = StatusPending
	return nil
}

func (s *MemoryStore) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, row := range s.rows {
		if row.Status == StatusPending {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) History(ctx context.Context, aggregateID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, id := range s.order {
		row := s.rows[id]
		if row.Event.AggregateID == aggregateID {
			out = append(out, row.Event)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}

func (s *MemoryStore) HistoryByType(ctx context.Context, eventType domain.EventType, limit int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, id := range s.order {
		row := s.rows[id]
		if row.Event.Type == eventType {
			out = append(out, row.Event)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Row returns a copy of one stored row; tests use it to assert status moves.
func (s *MemoryStore) Row(eventID domain.EventID) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[eventID]
	if !ok {
		return Row{}, false
	}
	return *row, true
}
