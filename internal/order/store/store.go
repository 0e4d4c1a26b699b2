// Package store provides order persistence adapters.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"vendcore/internal/order/models"
	"vendcore/internal/ownership"
	"vendcore/internal/storage"
	"vendcore/internal/storage/memory"
	"vendcore/internal/storage/postgres"
	"vendcore/pkg/platform/tx"
)

const (
	Table      = "orders"
	AuditTable = "commerce_audit_log"
)

type Memory struct {
	*memory.Store[*models.Order]
}

func NewMemory(opts ...memory.Option[*models.Order]) *Memory {
	return &Memory{Store: memory.New[*models.Order](opts...)}
}

func (m *Memory) FindByUser(ctx context.Context, userID string, page storage.PageRequest) (storage.Page[*models.Order], error) {
	return m.FindAllPaginated(ctx, storage.Filters{"user_id": userID}, page)
}

func (m *Memory) TotalSpentCents(ctx context.Context, userID string) (int64, error) {
	fulfilled, err := m.FindAll(ctx, storage.Filters{"user_id": userID, "status": models.StatusFulfilled})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, o := range fulfilled {
		total += o.TotalCents
	}
	return total, nil
}

func (m *Memory) CompletedOrders(ctx context.Context, userID string) (int, error) {
	return m.Count(ctx, storage.Filters{"user_id": userID, "status": models.StatusFulfilled})
}

type Postgres struct {
	*postgres.Store[*models.Order]
	db *sql.DB
}

func NewPostgres(db *sql.DB, guard *ownership.Guard, sink postgres.EventSink, log *slog.Logger) (*Postgres, error) {
	inner, err := postgres.New(postgres.Config[*models.Order]{
		DB:         db,
		Guard:      guard,
		Table:      Table,
		AuditTable: AuditTable,
		NewRecord:  func() *models.Order { return &models.Order{} },
		Sink:       sink,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return &Postgres{Store: inner, db: db}, nil
}

func (p *Postgres) FindByUser(ctx context.Context, userID string, page storage.PageRequest) (storage.Page[*models.Order], error) {
	return p.FindAllPaginated(ctx, storage.Filters{"user_id": userID}, page)
}

func (p *Postgres) TotalSpentCents(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := tx.Resolve(ctx, p.db).QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(SUM((data->>'total_cents')::bigint), 0)
		FROM %s
		WHERE data->>'user_id' = $1 AND data->>'status' = $2 AND NOT is_deleted`,
		pq.QuoteIdentifier(Table)),
		userID, string(models.StatusFulfilled),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum fulfilled orders: %w", err)
	}
	return total, nil
}

func (p *Postgres) CompletedOrders(ctx context.Context, userID string) (int, error) {
	return p.Count(ctx, storage.Filters{"user_id": userID, "status": models.StatusFulfilled})
}

func Schema() string {
	return postgres.Schema(Table)
}
