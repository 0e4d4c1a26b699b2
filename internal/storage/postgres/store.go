// Package postgres provides the generic SQL-backed repository adapter.
// Aggregates are stored as JSONB documents alongside extracted bookkeeping
// columns (version, timestamps, soft-delete markers), so one adapter serves
// every aggregate and filters stay queryable with expression indexes. Every
// statement passes the ownership guard before touching the database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vendcore/internal/ownership"
	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/platform/tx"
	"vendcore/pkg/requestcontext"
)

// EventSink receives domain events inside the same transaction as the data
// write. In production it is the outbox store.
type EventSink interface {
	Append(ctx context.Context, events []domain.Event) error
}

// Store is the generic postgres repository for one aggregate table.
type Store[T storage.Record[T]] struct {
	db         *sql.DB
	guard      *ownership.Guard
	table      string
	auditTable string
	newRecord  func() T
	sink       EventSink
	log        *slog.Logger
}

// Config wires a Store. Table and AuditTable must both be in the owning
// service's topology. NewRecord allocates an empty aggregate for scanning.
type Config[T storage.Record[T]] struct {
	DB         *sql.DB
	Guard      *ownership.Guard
	Table      string
	AuditTable string
	NewRecord  func() T
	Sink       EventSink
	Logger     *slog.Logger
}

func New[T storage.Record[T]](cfg Config[T]) (*Store[T], error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("db is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("ownership guard is required")
	}
	if cfg.Table == "" || cfg.AuditTable == "" {
		return nil, fmt.Errorf("table and audit table names are required")
	}
	if cfg.NewRecord == nil {
		return nil, fmt.Errorf("record constructor is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store[T]{
		db:         cfg.DB,
		guard:      cfg.Guard,
		table:      cfg.Table,
		auditTable: cfg.AuditTable,
		newRecord:  cfg.NewRecord,
		sink:       cfg.Sink,
		log:        cfg.Logger.With("store", cfg.Table),
	}, nil
}

const columns = `id, data, version, created_at, updated_at, created_by, updated_by, is_deleted, deleted_at`

func (s *Store[T]) readRelation() (string, error) {
	return s.guard.ReadTarget(s.table)
}

func (s *Store[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	relation, err := s.readRelation()
	if err != nil {
		return zero, err
	}
	row := tx.Resolve(ctx, s.db).QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1 AND NOT is_deleted`, columns, pq.QuoteIdentifier(relation)), id)
	return s.scan(row)
}

func (s *Store[T]) FindOne(ctx context.Context, filters storage.Filters) (T, error) {
	var zero T
	records, err := s.query(ctx, filters, false, "LIMIT 1", nil)
	if err != nil {
		return zero, err
	}
	if len(records) == 0 {
		return zero, sentinel.ErrNotFound
	}
	return records[0], nil
}

func (s *Store[T]) FindAll(ctx context.Context, filters storage.Filters) ([]T, error) {
	return s.query(ctx, filters, false, "", nil)
}

func (s *Store[T]) FindAllPaginated(ctx context.Context, filters storage.Filters, page storage.PageRequest) (storage.Page[T], error) {
	page = page.Normalize()
	total, err := s.Count(ctx, filters)
	if err != nil {
		return storage.Page[T]{}, err
	}
	records, err := s.query(ctx, filters, false,
		fmt.Sprintf("LIMIT %d OFFSET %d", page.Limit, page.Offset()), nil)
	if err != nil {
		return storage.Page[T]{}, err
	}
	return storage.Page[T]{Data: records, Meta: storage.NewPageMeta(total, page)}, nil
}

func (s *Store[T]) Exists(ctx context.Context, id string) (bool, error) {
	relation, err := s.readRelation()
	if err != nil {
		return false, err
	}
	var exists bool
	err = tx.Resolve(ctx, s.db).QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND NOT is_deleted)`,
		pq.QuoteIdentifier(relation)), id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existence: %w", err)
	}
	return exists, nil
}

func (s *Store[T]) Count(ctx context.Context, filters storage.Filters) (int, error) {
	relation, err := s.readRelation()
	if err != nil {
		return 0, err
	}
	where, args := buildWhere(filters, "NOT is_deleted")
	var count int
	err = tx.Resolve(ctx, s.db).QueryRowContext(ctx, fmt.Sprintf(
		`SELECT count(*) FROM %s %s`, pq.QuoteIdentifier(relation), where), args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (s *Store[T]) Save(ctx context.Context, record T) (T, error) {
	var zero T
	if err := s.guard.AuthorizeWrite(s.table); err != nil {
		return zero, err
	}
	now := requestcontext.Now(ctx)
	if record.EntityID() == "" {
		record.SetEntityID(uuid.NewString())
	}
	record.Created(now)
	record.StampCreated(requestcontext.ActorID(ctx))

	data, err := json.Marshal(record)
	if err != nil {
		return zero, fmt.Errorf("marshal record: %w", err)
	}
	_, err = tx.Resolve(ctx, s.db).ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, data, version, created_at, updated_at, created_by, updated_by, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)`, pq.QuoteIdentifier(s.table)),
		record.EntityID(), data, record.EntityVersion(), record.CreatedTime(), record.UpdatedTime(),
		requestcontext.ActorID(ctx), requestcontext.ActorID(ctx),
	)
	if err != nil {
		return zero, translateWrite(err, "insert record")
	}
	return record.Clone(), nil
}

func (s *Store[T]) Update(ctx context.Context, id string, expectedVersion int, patch storage.Patch[T]) (T, error) {
	var zero T
	if err := s.guard.AuthorizeWrite(s.table); err != nil {
		return zero, err
	}
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return zero, err
	}
	if current.EntityVersion() != expectedVersion {
		return zero, sentinel.ErrVersionMismatch
	}
	before := current.Clone()
	if err := patch.Apply(current); err != nil {
		return zero, err
	}
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	current.Touch(now)
	current.StampUpdated(actor)
	current.BumpVersion()

	data, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("marshal record: %w", err)
	}
	res, err := tx.Resolve(ctx, s.db).ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET data = $1, version = $2, updated_at = $3, updated_by = $4
		WHERE id = $5 AND version = $6 AND NOT is_deleted`, pq.QuoteIdentifier(s.table)),
		data, current.EntityVersion(), now, actor, id, expectedVersion,
	)
	if err != nil {
		return zero, translateWrite(err, "update record")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return zero, err
	}
	if affected == 0 {
		// Lost the race between read and write.
		return zero, sentinel.ErrVersionMismatch
	}
	if err := s.appendAudit(ctx, storage.ChangeSet{
		EntityID:  id,
		Version:   current.EntityVersion(),
		ChangedBy: actor,
		ChangedAt: now,
		Changes:   storage.Diff(before, current),
	}); err != nil {
		return zero, err
	}
	return current.Clone(), nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	return s.SoftDelete(ctx, id)
}

func (s *Store[T]) CreateMany(ctx context.Context, records []T) ([]T, error) {
	var out []T
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, record := range records {
			saved, err := s.Save(ctx, record)
			if err != nil {
				return err
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store[T]) UpdateMany(ctx context.Context, filters storage.Filters, patch storage.Patch[T]) (int, error) {
	var updated int
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		records, err := s.FindAll(ctx, filters)
		if err != nil {
			return err
		}
		for _, record := range records {
			if _, err := s.Update(ctx, record.EntityID(), record.EntityVersion(), patch); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (s *Store[T]) DeleteMany(ctx context.Context, filters storage.Filters) (int, error) {
	var deleted int
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		records, err := s.FindAll(ctx, filters)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := s.SoftDelete(ctx, record.EntityID()); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Store[T]) SoftDelete(ctx context.Context, id string) error {
	if err := s.guard.AuthorizeWrite(s.table); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	res, err := tx.Resolve(ctx, s.db).ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET is_deleted = true, deleted_at = $1, updated_at = $1, updated_by = $2,
			version = version + 1,
			data = jsonb_set(jsonb_set(data, '{is_deleted}', 'true'), '{deleted_at}', to_jsonb($1::timestamptz))
		WHERE id = $3 AND NOT is_deleted`, pq.QuoteIdentifier(s.table)),
		now, actor, id,
	)
	if err != nil {
		return translateWrite(err, "soft delete record")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return s.appendAudit(ctx, storage.ChangeSet{
		EntityID:  id,
		ChangedBy: actor,
		ChangedAt: now,
		Changes:   []storage.FieldChange{{Field: "is_deleted", Old: false, New: true}},
	})
}

func (s *Store[T]) Restore(ctx context.Context, id string) (T, error) {
	var zero T
	if err := s.guard.AuthorizeWrite(s.table); err != nil {
		return zero, err
	}
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)
	res, err := tx.Resolve(ctx, s.db).ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET is_deleted = false, deleted_at = NULL, updated_at = $1, updated_by = $2,
			version = version + 1,
			data = jsonb_set(data, '{is_deleted}', 'false') - 'deleted_at'
		WHERE id = $3 AND is_deleted`, pq.QuoteIdentifier(s.table)),
		now, actor, id,
	)
	if err != nil {
		return zero, translateWrite(err, "restore record")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return zero, err
	}
	if affected == 0 {
		return zero, sentinel.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *Store[T]) FindAllWithDeleted(ctx context.Context, filters storage.Filters) ([]T, error) {
	return s.query(ctx, filters, true, "", nil)
}

func (s *Store[T]) FindDeleted(ctx context.Context, filters storage.Filters) ([]T, error) {
	return s.query(ctx, filters, true, "", []string{"is_deleted"})
}

// ForceDelete permanently removes the row. The audit trail keeps its history.
func (s *Store[T]) ForceDelete(ctx context.Context, id string) error {
	if err := s.guard.AuthorizeWrite(s.table); err != nil {
		return err
	}
	s.log.Warn("force delete requested", "entity_id", id, "actor", requestcontext.ActorID(ctx))
	res, err := tx.Resolve(ctx, s.db).ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1`, pq.QuoteIdentifier(s.table)), id)
	if err != nil {
		return translateWrite(err, "force delete record")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store[T]) FindCreatedBetween(ctx context.Context, from, to time.Time) ([]T, error) {
	return s.findBetween(ctx, "created_at", from, to)
}

func (s *Store[T]) FindUpdatedBetween(ctx context.Context, from, to time.Time) ([]T, error) {
	return s.findBetween(ctx, "updated_at", from, to)
}

func (s *Store[T]) findBetween(ctx context.Context, column string, from, to time.Time) ([]T, error) {
	relation, err := s.readRelation()
	if err != nil {
		return nil, err
	}
	rows, err := tx.Resolve(ctx, s.db).QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE NOT is_deleted AND %s >= $1 AND %s <= $2
		ORDER BY created_at, id`, columns, pq.QuoteIdentifier(relation), column, column),
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query records by %s: %w", column, err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *Store[T]) AuditTrail(ctx context.Context, id string) ([]storage.ChangeSet, error) {
	if err := s.guard.AuthorizeRead(s.auditTable); err != nil {
		return nil, err
	}
	rows, err := tx.Resolve(ctx, s.db).QueryContext(ctx, fmt.Sprintf(`
		SELECT entity_id, version, changed_by, changed_at, changes
		FROM %s
		WHERE entity_table = $1 AND entity_id = $2
		ORDER BY changed_at, version`, pq.QuoteIdentifier(s.auditTable)),
		s.table, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	var out []storage.ChangeSet
	for rows.Next() {
		var (
			cs         storage.ChangeSet
			changedBy  sql.NullString
			rawChanges []byte
		)
		if err := rows.Scan(&cs.EntityID, &cs.Version, &changedBy, &cs.ChangedAt, &rawChanges); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		cs.ChangedBy = changedBy.String
		if len(rawChanges) > 0 {
			if err := json.Unmarshal(rawChanges, &cs.Changes); err != nil {
				return nil, fmt.Errorf("unmarshal audit changes: %w", err)
			}
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// WithTransaction opens a database transaction (or reuses the caller's) and
// runs fn with it in context, so every store call inside joins the same unit
// of work.
func (s *Store[T]) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransactionAborted, "begin transaction")
	}
	if err := fn(tx.WithTx(ctx, dbTx)); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			s.log.Error("transaction rollback failed", "error", rbErr)
		}
		return dErrors.Wrap(err, dErrors.CodeTransactionAborted, "transaction rolled back")
	}
	if err := dbTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransactionAborted, "commit transaction")
	}
	return nil
}

func (s *Store[T]) SaveWithEvents(ctx context.Context, record T, events []domain.Event) (T, error) {
	var saved T
	err := s.withSink(ctx, events, func(ctx context.Context) error {
		var err error
		saved, err = s.Save(ctx, record)
		if err != nil {
			return err
		}
		// Creation events are recorded before the store assigns the entity ID.
		for i := range events {
			if events[i].AggregateID == "" {
				events[i].AggregateID = saved.EntityID()
			}
		}
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return saved, nil
}

func (s *Store[T]) UpdateWithEvents(ctx context.Context, id string, expectedVersion int, patch storage.Patch[T], events []domain.Event) (T, error) {
	var updated T
	err := s.withSink(ctx, events, func(ctx context.Context) error {
		var err error
		updated, err = s.Update(ctx, id, expectedVersion, patch)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return updated, nil
}

func (s *Store[T]) DeleteWithEvents(ctx context.Context, id string, events []domain.Event) error {
	return s.withSink(ctx, events, func(ctx context.Context) error {
		return s.SoftDelete(ctx, id)
	})
}

func (s *Store[T]) withSink(ctx context.Context, events []domain.Event, mutate func(ctx context.Context) error) error {
	if s.sink == nil {
		return dErrors.New(dErrors.CodeInternal, "event sink is not configured")
	}
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := mutate(ctx); err != nil {
			return err
		}
		return s.sink.Append(ctx, events)
	})
}

func (s *Store[T]) appendAudit(ctx context.Context, cs storage.ChangeSet) error {
	if err := s.guard.AuthorizeWrite(s.auditTable); err != nil {
		return err
	}
	changes, err := json.Marshal(cs.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	_, err = tx.Resolve(ctx, s.db).ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (entity_table, entity_id, version, changed_by, changed_at, changes)
		VALUES ($1, $2, $3, $4, $5, $6)`, pq.QuoteIdentifier(s.auditTable)),
		s.table, cs.EntityID, cs.Version, nullString(cs.ChangedBy), cs.ChangedAt, changes,
	)
	if err != nil {
		return translateWrite(err, "append audit entry")
	}
	return nil
}

func (s *Store[T]) query(ctx context.Context, filters storage.Filters, includeDeleted bool, tail string, extra []string) ([]T, error) {
	relation, err := s.readRelation()
	if err != nil {
		return nil, err
	}
	base := "NOT is_deleted"
	if includeDeleted {
		base = ""
	}
	conds := extra
	if base != "" {
		conds = append([]string{base}, extra...)
	}
	where, args := buildWhere(filters, conds...)
	rows, err := tx.Resolve(ctx, s.db).QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s %s ORDER BY created_at, id %s`,
		columns, pq.QuoteIdentifier(relation), where, tail), args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

func (s *Store[T]) collect(rows *sql.Rows) ([]T, error) {
	var out []T
	for rows.Next() {
		record, err := s.scanRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store[T]) scan(row scanner) (T, error) {
	var zero T
	record := s.newRecord()
	var (
		id                   string
		data                 []byte
		version              int
		createdAt, updatedAt time.Time
		createdBy, updatedBy sql.NullString
		isDeleted            bool
		deletedAt            sql.NullTime
	)
	err := row.Scan(&id, &data, &version, &createdAt, &updatedAt, &createdBy, &updatedBy, &isDeleted, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, sentinel.ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("scan record: %w", err)
	}
	if err := json.Unmarshal(data, record); err != nil {
		return zero, fmt.Errorf("unmarshal record: %w", err)
	}
	// Bookkeeping columns win over whatever the document says.
	record.SetEntityID(id)
	for record.EntityVersion() < version {
		record.BumpVersion()
	}
	return record, nil
}

func (s *Store[T]) scanRows(rows *sql.Rows) (T, error) {
	return s.scan(rows)
}

// buildWhere renders filters as JSONB field comparisons plus any fixed
// conditions. Filter values are compared as text.
func buildWhere(filters storage.Filters, fixed ...string) (string, []any) {
	conds := append([]string{}, fixed...)
	var args []any
	for _, field := range filters.Keys() {
		args = append(args, fmt.Sprint(filters[field]))
		conds = append(conds, fmt.Sprintf("data->>%s = $%d", pq.QuoteLiteral(field), len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	where := "WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

func translateWrite(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return sentinel.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Schema returns the DDL for an aggregate table.
func Schema(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	data JSONB NOT NULL,
	version INT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by TEXT,
	updated_by TEXT,
	is_deleted BOOLEAN NOT NULL DEFAULT false,
	deleted_at TIMESTAMPTZ
);`, pq.QuoteIdentifier(table))
}

// AuditSchema returns the DDL for a service's shared audit log table.
func AuditSchema(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	entity_table TEXT NOT NULL,
	entity_id UUID NOT NULL,
	version INT NOT NULL DEFAULT 0,
	changed_by TEXT,
	changed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	changes JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS %s ON %s (entity_table, entity_id, changed_at);`,
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(table+"_entity_idx"), pq.QuoteIdentifier(table))
}

// UniqueIndex returns DDL enforcing uniqueness of a document field, ignoring
// rows where the field is absent or empty.
func UniqueIndex(table, field string) string {
	return fmt.Sprintf(`
CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s ((data->>%s)) WHERE data->>%s <> '';`,
		pq.QuoteIdentifier(table+"_"+field+"_key"), pq.QuoteIdentifier(table),
		pq.QuoteLiteral(field), pq.QuoteLiteral(field))
}

// ProjectionView returns DDL for the versioned read-only projection of a
// shared table.
func ProjectionView(table string, version int) string {
	view := ownership.ProjectionName(table, version)
	return fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM %s;`,
		pq.QuoteIdentifier(view), pq.QuoteIdentifier(table))
}
