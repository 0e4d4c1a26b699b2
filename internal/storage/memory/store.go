// Package memory provides the in-memory repository adapter. It implements the
// full aggregate-store contract and backs unit tests and single-process
// deployments; aggregate packages wrap it with their own finders.
// It intentionally favors clarity over performance.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/requestcontext"
)

// EventSink receives the domain events of event-aware mutations. In-process
// this is the memory outbox; the append happens inside the store's unit of
// work so data and events commit together.
type EventSink interface {
	Append(ctx context.Context, events []domain.Event) error
}

// Store is a map-backed aggregate store guarded by a RWMutex. Records are
// cloned on the way in and out so callers never alias store state.
type Store[T storage.Record[T]] struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	items map[string]T
	trail map[string][]storage.ChangeSet
	sink  EventSink
	log   *slog.Logger
}

// Option configures a Store.
type Option[T storage.Record[T]] func(*Store[T])

// WithEventSink wires the outbox used by the event-aware operations.
func WithEventSink[T storage.Record[T]](sink EventSink) Option[T] {
	return func(s *Store[T]) { s.sink = sink }
}

// WithLogger attaches a logger; ForceDelete logs through it.
func WithLogger[T storage.Record[T]](log *slog.Logger) Option[T] {
	return func(s *Store[T]) { s.log = log }
}

// New constructs an empty store.
func New[T storage.Record[T]](opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		items: make(map[string]T),
		trail: make(map[string][]storage.ChangeSet),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.AggregateStore[*noopRecord] = (*Store[*noopRecord])(nil)

// -----------------------------------------------------------------------------
// Reader
// -----------------------------------------------------------------------------

func (s *Store[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.items[id]
	if !ok || record.IsDeleted() {
		return zero, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *Store[T]) FindOne(ctx context.Context, filters storage.Filters) (T, error) {
	var zero T
	records, err := s.FindAll(ctx, filters)
	if err != nil {
		return zero, err
	}
	if len(records) == 0 {
		return zero, sentinel.ErrNotFound
	}
	return records[0], nil
}

func (s *Store[T]) FindAll(ctx context.Context, filters storage.Filters) ([]T, error) {
	return s.findWhere(filters, func(r T) bool { return !r.IsDeleted() })
}

func (s *Store[T]) FindAllPaginated(ctx context.Context, filters storage.Filters, page storage.PageRequest) (storage.Page[T], error) {
	records, err := s.FindAll(ctx, filters)
	if err != nil {
		return storage.Page[T]{}, err
	}
	return storage.Paginate(records, page), nil
}

func (s *Store[T]) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.items[id]
	return ok && !record.IsDeleted(), nil
}

func (s *Store[T]) Count(ctx context.Context, filters storage.Filters) (int, error) {
	records, err := s.FindAll(ctx, filters)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// findWhere snapshots matching records in deterministic order (creation time,
// then id) so pagination is stable.
func (s *Store[T]) findWhere(filters storage.Filters, keep func(T) bool) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0)
	for _, record := range s.items {
		if !keep(record) {
			continue
		}
		matched, err := record.Match(filters)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedTime().Equal(out[j].CreatedTime()) {
			return out[i].CreatedTime().Before(out[j].CreatedTime())
		}
		return out[i].EntityID() < out[j].EntityID()
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

func (s *Store[T]) Save(ctx context.Context, record T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, record)
}

func (s *Store[T]) saveLocked(ctx context.Context, record T) (T, error) {
	var zero T
	stored := record.Clone()
	if stored.EntityID() == "" {
		stored.SetEntityID(uuid.New().String())
	} else if _, exists := s.items[stored.EntityID()]; exists {
		return zero, sentinel.ErrConflict
	}
	now := requestcontext.Now(ctx)
	stored.Created(now)
	stored.StampCreated(requestcontext.ActorID(ctx))
	s.items[stored.EntityID()] = stored
	return stored.Clone(), nil
}

func (s *Store[T]) Update(ctx context.Context, id string, expectedVersion int, patch storage.Patch[T]) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, id, expectedVersion, patch)
}

func (s *Store[T]) updateLocked(ctx context.Context, id string, expectedVersion int, patch storage.Patch[T]) (T, error) {
	var zero T
	current, ok := s.items[id]
	if !ok || current.IsDeleted() {
		return zero, sentinel.ErrNotFound
	}
	if current.EntityVersion() != expectedVersion {
		return zero, sentinel.ErrVersionMismatch
	}
	updated := current.Clone()
	if err := patch.Apply(updated); err != nil {
		return zero, err
	}
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	updated.Touch(now)
	updated.StampUpdated(actor)
	updated.BumpVersion()
	s.items[id] = updated
	s.trail[id] = append(s.trail[id], storage.ChangeSet{
		EntityID:  id,
		Version:   updated.EntityVersion(),
		ChangedBy: actor,
		ChangedAt: now,
		Changes:   storage.Diff(current, updated),
	})
	return updated.Clone(), nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store[T]) CreateMany(ctx context.Context, records []T) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(records))
	for _, record := range records {
		stored, err := s.saveLocked(ctx, record)
		if err != nil {
			// Roll the batch back: bulk creates are all-or-nothing.
			for _, created := range out {
				delete(s.items, created.EntityID())
			}
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (s *Store[T]) UpdateMany(ctx context.Context, filters storage.Filters, patch storage.Patch[T]) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	for id, current := range s.items {
		if current.IsDeleted() {
			continue
		}
		matched, err := current.Match(filters)
		if err != nil {
			return 0, err
		}
		if !matched {
			continue
		}
		next := current.Clone()
		if err := patch.Apply(next); err != nil {
			return 0, err
		}
		next.Touch(now)
		next.StampUpdated(actor)
		next.BumpVersion()
		s.items[id] = next
		s.trail[id] = append(s.trail[id], storage.ChangeSet{
			EntityID:  id,
			Version:   next.EntityVersion(),
			ChangedBy: actor,
			ChangedAt: now,
			Changes:   storage.Diff(current, next),
		})
		updated++
	}
	return updated, nil
}

func (s *Store[T]) DeleteMany(ctx context.Context, filters storage.Filters) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.items {
		matched, err := record.Match(filters)
		if err != nil {
			return 0, err
		}
		if matched {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

// -----------------------------------------------------------------------------
// SoftDeletable
// -----------------------------------------------------------------------------

func (s *Store[T]) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[id]
	if !ok || current.IsDeleted() {
		return sentinel.ErrNotFound
	}
	now := requestcontext.Now(ctx)
	updated := current.Clone()
	updated.MarkDeleted(now)
	updated.Touch(now)
	updated.BumpVersion()
	s.items[id] = updated
	s.trail[id] = append(s.trail[id], storage.ChangeSet{
		EntityID:  id,
		Version:   updated.EntityVersion(),
		ChangedBy: requestcontext.ActorID(ctx),
		ChangedAt: now,
		Changes:   storage.Diff(current, updated),
	})
	return nil
}

func (s *Store[T]) Restore(ctx context.Context, id string) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[id]
	if !ok {
		return zero, sentinel.ErrNotFound
	}
	if !current.IsDeleted() {
		return zero, sentinel.ErrInvalidState
	}
	now := requestcontext.Now(ctx)
	updated := current.Clone()
	updated.ClearDeleted()
	updated.Touch(now)
	updated.BumpVersion()
	s.items[id] = updated
	return updated.Clone(), nil
}

func (s *Store[T]) FindAllWithDeleted(ctx context.Context, filters storage.Filters) ([]T, error) {
	return s.findWhere(filters, func(T) bool { return true })
}

func (s *Store[T]) FindDeleted(ctx context.Context, filters storage.Filters) ([]T, error) {
	return s.findWhere(filters, func(r T) bool { return r.IsDeleted() })
}

func (s *Store[T]) ForceDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.items, id)
	delete(s.trail, id)
	s.log.Warn("force-deleted record", "id", id)
	return nil
}

// -----------------------------------------------------------------------------
// Auditable
// -----------------------------------------------------------------------------

func (s *Store[T]) FindCreatedBetween(ctx context.Context, from, to time.Time) ([]T, error) {
	return s.findWhere(nil, func(r T) bool {
		created := r.CreatedTime()
		return !r.IsDeleted() && !created.Before(from) && !created.After(to)
	})
}

func (s *Store[T]) FindUpdatedBetween(ctx context.Context, from, to time.Time) ([]T, error) {
	return s.findWhere(nil, func(r T) bool {
		updated := r.UpdatedTime()
		return !r.IsDeleted() && !updated.Before(from) && !updated.After(to)
	})
}

func (s *Store[T]) AuditTrail(ctx context.Context, id string) ([]storage.ChangeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.trail[id]
	out := make([]storage.ChangeSet, len(entries))
	copy(out, entries)
	return out, nil
}

// -----------------------------------------------------------------------------
// Transactional
// -----------------------------------------------------------------------------

// WithTransaction snapshots the store, runs fn, and restores the snapshot if
// fn fails. Transactions are serialized by txMu, so a concurrent transaction
// never observes a partially applied multi-entity write.
func (s *Store[T]) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	itemsSnap := make(map[string]T, len(s.items))
	for id, record := range s.items {
		itemsSnap[id] = record.Clone()
	}
	trailSnap := make(map[string][]storage.ChangeSet, len(s.trail))
	for id, entries := range s.trail {
		trailSnap[id] = append([]storage.ChangeSet(nil), entries...)
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.items = itemsSnap
		s.trail = trailSnap
		s.mu.Unlock()
		return dErrors.Wrap(err, dErrors.CodeTransactionAborted, "transaction rolled back")
	}
	return nil
}

// -----------------------------------------------------------------------------
// EventAware
// -----------------------------------------------------------------------------

func (s *Store[T]) SaveWithEvents(ctx context.Context, record T, events []domain.Event) (T, error) {
	var zero T
	if s.sink == nil {
		return zero, dErrors.New(dErrors.CodeInternal, "event-aware store has no event sink configured")
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	stored, err := s.saveLocked(ctx, record)
	s.mu.Unlock()
	if err != nil {
		return zero, err
	}
	// Creation events are recorded before the store assigns the entity ID.
	for i := range events {
		if events[i].AggregateID == "" {
			events[i].AggregateID = stored.EntityID()
		}
	}
	if err := s.sink.Append(ctx, events); err != nil {
		s.mu.Lock()
		delete(s.items, stored.EntityID())
		s.mu.Unlock()
		return zero, dErrors.Wrap(err, dErrors.CodeTransactionAborted, "event append failed, save rolled back")
	}
	return stored, nil
}

func (s *Store[T]) UpdateWithEvents(ctx context.Context, id string, expectedVersion int, patch storage.Patch[T], events []domain.Event) (T, error) {
	var zero T
	if s.sink == nil {
		return zero, dErrors.New(dErrors.CodeInternal, "event-aware store has no event sink configured")
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	previous, hadPrevious := s.items[id]
	previousTrail := append([]storage.ChangeSet(nil), s.trail[id]...)
	updated, err := s.updateLocked(ctx, id, expectedVersion, patch)
	s.mu.Unlock()
	if err != nil {
		return zero, err
	}
	if err := s.sink.Append(ctx, events); err != nil {
		s.mu.Lock()
		if hadPrevious {
			s.items[id] = previous
		}
		s.trail[id] = previousTrail
		s.mu.Unlock()
		return zero, dErrors.Wrap(err, dErrors.CodeTransactionAborted, "event append failed, update rolled back")
	}
	return updated, nil
}

func (s *Store[T]) DeleteWithEvents(ctx context.Context, id string, events []domain.Event) error {
	if s.sink == nil {
		return dErrors.New(dErrors.CodeInternal, "event-aware store has no event sink configured")
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	previous, ok := s.items[id]
	if !ok || previous.IsDeleted() {
		s.mu.Unlock()
		return sentinel.ErrNotFound
	}
	now := requestcontext.Now(ctx)
	updated := previous.Clone()
	updated.MarkDeleted(now)
	updated.Touch(now)
	updated.BumpVersion()
	s.items[id] = updated
	s.mu.Unlock()

	if err := s.sink.Append(ctx, events); err != nil {
		s.mu.Lock()
		s.items[id] = previous
		s.mu.Unlock()
		return dErrors.Wrap(err, dErrors.CodeTransactionAborted, "event append failed, delete rolled back")
	}
	return nil
}

// noopRecord pins the interface assertion above without exporting a real
// aggregate from this package.
type noopRecord struct {
	domain.Entity
	domain.Audit
	domain.SoftDelete
}

func (n *noopRecord) Clone() *noopRecord {
	clone := *n
	return &clone
}

func (n *noopRecord) Match(filters storage.Filters) (bool, error) {
	for field := range filters {
		return false, storage.ErrUnknownField(field)
	}
	return true, nil
}
