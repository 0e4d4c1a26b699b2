package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"vendcore/internal/ownership"
	"vendcore/pkg/domain"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/platform/tx"
)

// PostgresStore persists outbox rows in the owning service's events table.
// Append resolves the caller's transaction from context, so events land in
// the same commit as the aggregate write. Every write is gated by the
// ownership guard before SQL is issued.
type PostgresStore struct {
	db    *sql.DB
	guard *ownership.Guard
	table string
}

// NewPostgres builds the store for one service's outbox table
// ("machine_events" or "commerce_events").
func NewPostgres(db *sql.DB, guard *ownership.Guard, table string) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("ownership guard is required")
	}
	if table == "" {
		return nil, fmt.Errorf("outbox table name is required")
	}
	return &PostgresStore{db: db, guard: guard, table: table}, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Append(ctx context.Context, events []domain.Event) error {
	if err := s.guard.AuthorizeWrite(s.table); err != nil {
		return err
	}
	q := tx.Resolve(ctx, s.db)
	for _, event := range events {
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		_, err = q.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, event_type, aggregate_id, aggregate_type, schema_version,
				occurred_at, user_id, metadata, payload, status, attempts, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, now())`, pq.QuoteIdentifier(s.table)),
			event.ID.String(), string(event.Type), event.AggregateID, event.AggregateType,
			event.SchemaVersion, event.OccurredAt, nullString(event.UserID), metadata, payload,
			string(StatusPending),
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("append outbox event: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]Row, error) {
	if err := s.guard.AuthorizeRead(s.table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, event_type, aggregate_id, aggregate_type, schema_version,
			occurred_at, user_id, metadata, payload, status, attempts, last_error,
			created_at, published_at
		FROM %s
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2`, pq.QuoteIdentifier(s.table)),
		string(StatusPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, eventID domain.EventID) error {
	if err := s.guard.AuthorizeWrite(s.table); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = $1, attempts = attempts + 1
		WHERE id = $2 AND status = $3`, pq.QuoteIdentifier(s.table)),
		string(StatusProcessing), eventID.String(), string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("claim outbox event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either missing or already claimed by another worker.
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, eventID domain.EventID) error {
	if err := s.guard.AuthorizeWrite(s.table); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = $1, published_at = now()
		WHERE id = $2`, pq.QuoteIdentifier(s.table)),
		string(StatusPublished), eventID.String(),
	)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
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

func (s *PostgresStore) MarkFailed(ctx context.Context, eventID domain.EventID, reason string, maxAttempts int) error {
	if err := s.guard.AuthorizeWrite(s.table); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET
			last_error = $1,
			status = CASE WHEN attempts >= $2 THEN $3 ELSE $4 END
		WHERE id = $5`, pq.QuoteIdentifier(s.table)),
		reason, maxAttempts, string(StatusFailed), string(StatusPending), eventID.String(),
	)
	if err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
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

func (s *PostgresStore) PendingCount(ctx context.Context) (int, error) {
	if err := s.guard.AuthorizeRead(s.table); err != nil {
		return 0, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT count(*) FROM %s WHERE status = $1`, pq.QuoteIdentifier(s.table)),
		string(StatusPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox rows: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) History(ctx context.Context, aggregateID string) ([]domain.Event, error) {
	if err := s.guard.AuthorizeRead(s.table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, event_type, aggregate_id, aggregate_type, schema_version,
			occurred_at, user_id, metadata, payload, status, attempts, last_error,
			created_at, published_at
		FROM %s
		WHERE aggregate_id = $1
		ORDER BY occurred_at, created_at`, pq.QuoteIdentifier(s.table)),
		aggregateID,
	)
	if err != nil {
		return nil, fmt.Errorf("query event history: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *PostgresStore) HistoryByType(ctx context.Context, eventType domain.EventType, limit int) ([]domain.Event, error) {
	if err := s.guard.AuthorizeRead(s.table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, event_type, aggregate_id, aggregate_type, schema_version,
			occurred_at, user_id, metadata, payload, status, attempts, last_error,
			created_at, published_at
		FROM (
			SELECT * FROM %s WHERE event_type = $1 ORDER BY created_at DESC LIMIT $2
		) recent
		ORDER BY created_at`, pq.QuoteIdentifier(s.table)),
		string(eventType), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query event history by type: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var out []domain.Event
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row.Event)
	}
	return out, rows.Err()
}

func scanRow(rows *sql.Rows) (Row, error) {
	var (
		row         Row
		rawID       string
		rawType     string
		rawUser     sql.NullString
		rawMetadata []byte
		rawPayload  []byte
		rawStatus   string
		rawError    sql.NullString
		publishedAt sql.NullTime
	)
	err := rows.Scan(&rawID, &rawType, &row.Event.AggregateID, &row.Event.AggregateType,
		&row.Event.SchemaVersion, &row.Event.OccurredAt, &rawUser, &rawMetadata, &rawPayload,
		&rawStatus, &row.Attempts, &rawError, &row.CreatedAt, &publishedAt)
	if err != nil {
		return Row{}, fmt.Errorf("scan outbox row: %w", err)
	}
	eventID, err := domain.ParseEventID(rawID)
	if err != nil {
		return Row{}, fmt.Errorf("stored event id is invalid: %w", err)
	}
	row.Event.ID = eventID
	row.Event.Type = domain.EventType(rawType)
	row.Event.UserID = rawUser.String
	row.Status = Status(rawStatus)
	row.LastError = rawError.String
	if publishedAt.Valid {
		t := publishedAt.Time
		row.PublishedAt = &t
	}
	if len(rawMetadata) > 0 {
		if err := json.Unmarshal(rawMetadata, &row.Event.Metadata); err != nil {
			return Row{}, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &row.Event.Payload); err != nil {
			return Row{}, fmt.Errorf("unmarshal event payload: %w", err)
		}
	}
	return row, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Schema returns the DDL for an outbox table; migrations and the integration
// test harness both use it.
func Schema(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	schema_version INT NOT NULL DEFAULT 1,
	occurred_at TIMESTAMPTZ NOT NULL,
	user_id TEXT,
	metadata JSONB,
	payload JSONB,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INT NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS %s ON %s (status, created_at);
CREATE INDEX IF NOT EXISTS %s ON %s (aggregate_id, occurred_at);`,
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(table+"_status_idx"), pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(table+"_aggregate_idx"), pq.QuoteIdentifier(table))
}
