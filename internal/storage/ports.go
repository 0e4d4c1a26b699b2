// Package storage defines the capability contracts every repository adapter
// implements. Each aggregate composes its port from these named interfaces so
// adapters are checked against an intentional contract, not an accidental
// shape match.
package storage

import (
	"context"
	"time"

	"vendcore/pkg/domain"
)

// Record is the accessor surface a persisted aggregate exposes to generic
// adapters. The domain mixins (Entity, Audit, SoftDelete) provide most of it;
// Clone and Match are written per model.
type Record[T any] interface {
	EntityID() string
	SetEntityID(string)
	CreatedTime() time.Time
	UpdatedTime() time.Time
	Created(time.Time)
	Touch(time.Time)
	EntityVersion() int
	BumpVersion()
	StampCreated(by string)
	StampUpdated(by string)
	IsDeleted() bool
	MarkDeleted(time.Time)
	ClearDeleted()

	// Clone returns a deep copy so adapter-held state never aliases
	// caller-held aggregates.
	Clone() T
	// Match evaluates exact-match filters against the record. Unknown filter
	// fields are a validation error, never silently ignored.
	Match(Filters) (bool, error)
}

// Patch is a typed partial update. Implementations reject unknown fields at
// construction and apply only the fields that were set.
type Patch[T any] interface {
	// Apply mutates the record in place. Business-rule violations surface as
	// domain errors and abort the update.
	Apply(T) error
	// FieldNames lists the fields the patch sets, for the audit trail.
	FieldNames() []string
}

// Reader is the query side of the base repository contract. Standard queries
// exclude soft-deleted records.
type Reader[T Record[T]] interface {
	FindByID(ctx context.Context, id string) (T, error)
	FindOne(ctx context.Context, filters Filters) (T, error)
	FindAll(ctx context.Context, filters Filters) ([]T, error)
	FindAllPaginated(ctx context.Context, filters Filters, page PageRequest) (Page[T], error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context, filters Filters) (int, error)
}

// Writer is the mutation side of the base repository contract. Save assigns
// server-side fields (id, timestamps, initial version); Update enforces the
// optimistic-concurrency check against expectedVersion.
type Writer[T Record[T]] interface {
	Save(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, id string, expectedVersion int, patch Patch[T]) (T, error)
	Delete(ctx context.Context, id string) error
	CreateMany(ctx context.Context, records []T) ([]T, error)
	UpdateMany(ctx context.Context, filters Filters, patch Patch[T]) (int, error)
	DeleteMany(ctx context.Context, filters Filters) (int, error)
}

// Repository is the base contract every aggregate port embeds.
type Repository[T Record[T]] interface {
	Reader[T]
	Writer[T]
}

// SoftDeletable adds logical-removal operations. ForceDelete is permanent and
// irreversible; adapters log it.
type SoftDeletable[T Record[T]] interface {
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) (T, error)
	FindAllWithDeleted(ctx context.Context, filters Filters) ([]T, error)
	FindDeleted(ctx context.Context, filters Filters) ([]T, error)
	ForceDelete(ctx context.Context, id string) error
}

// Auditable adds date-range queries and the append-only change trail.
type Auditable[T Record[T]] interface {
	FindCreatedBetween(ctx context.Context, from, to time.Time) ([]T, error)
	FindUpdatedBetween(ctx context.Context, from, to time.Time) ([]T, error)
	// AuditTrail returns the ordered field-level diffs recorded for an
	// entity, oldest first.
	AuditTrail(ctx context.Context, id string) ([]ChangeSet, error)
}

// Transactional runs fn as one atomic unit: every operation performed through
// the store inside fn commits together or not at all. Concurrent transactions
// never observe a partially applied multi-entity write.
type Transactional interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventAware couples a mutation with its domain events. The data change and
// the outbox rows are accepted or rejected as a single unit; actual dispatch
// happens asynchronously off the outbox.
type EventAware[T Record[T]] interface {
	SaveWithEvents(ctx context.Context, record T, events []domain.Event) (T, error)
	UpdateWithEvents(ctx context.Context, id string, expectedVersion int, patch Patch[T], events []domain.Event) (T, error)
	DeleteWithEvents(ctx context.Context, id string, events []domain.Event) error
}

// AggregateStore is the full per-aggregate port: every capability the
// contract layer defines. Aggregate packages narrow or extend it with their
// own finders.
type AggregateStore[T Record[T]] interface {
	Repository[T]
	SoftDeletable[T]
	Auditable[T]
	Transactional
	EventAware[T]
}

// FieldChange is one field-level diff inside a change set.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// ChangeSet is one append-only audit trail entry: who changed what, when, and
// the version the change produced.
type ChangeSet struct {
	EntityID  string        `json:"entity_id"`
	Version   int           `json:"version"`
	ChangedBy string        `json:"changed_by,omitempty"`
	ChangedAt time.Time     `json:"changed_at"`
	Changes   []FieldChange `json:"changes"`
}
