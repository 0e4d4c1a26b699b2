// Package store provides payment persistence adapters.
package store

import (
	"context"
	"database/sql"
	"log/slog"

	"vendcore/internal/ownership"
	"vendcore/internal/payment/models"
	"vendcore/internal/storage"
	"vendcore/internal/storage/memory"
	"vendcore/internal/storage/postgres"
)

const (
	Table       = "payments"
	MethodTable = "payment_methods"
	AuditTable  = "commerce_audit_log"
)

type Memory struct {
	*memory.Store[*models.Payment]
}

func NewMemory(opts ...memory.Option[*models.Payment]) *Memory {
	return &Memory{Store: memory.New[*models.Payment](opts...)}
}

func (m *Memory) FindByOrder(ctx context.Context, orderID string) ([]*models.Payment, error) {
	return m.FindAll(ctx, storage.Filters{"order_id": orderID})
}

func (m *Memory) FindByUser(ctx context.Context, userID string, page storage.PageRequest) (storage.Page[*models.Payment], error) {
	return m.FindAllPaginated(ctx, storage.Filters{"user_id": userID}, page)
}

// MethodMemory is the in-memory payment method repository.
type MethodMemory struct {
	*memory.Store[*models.PaymentMethod]
}

func NewMethodMemory(opts ...memory.Option[*models.PaymentMethod]) *MethodMemory {
	return &MethodMemory{Store: memory.New[*models.PaymentMethod](opts...)}
}

func (m *MethodMemory) FindByUser(ctx context.Context, userID string) ([]*models.PaymentMethod, error) {
	return m.FindAll(ctx, storage.Filters{"user_id": userID})
}

type Postgres struct {
	*postgres.Store[*models.Payment]
}

func NewPostgres(db *sql.DB, guard *ownership.Guard, sink postgres.EventSink, log *slog.Logger) (*Postgres, error) {
	inner, err := postgres.New(postgres.Config[*models.Payment]{
		DB:         db,
		Guard:      guard,
		Table:      Table,
		AuditTable: AuditTable,
		NewRecord:  func() *models.Payment { return &models.Payment{} },
		Sink:       sink,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return &Postgres{Store: inner}, nil
}

func (p *Postgres) FindByOrder(ctx context.Context, orderID string) ([]*models.Payment, error) {
	return p.FindAll(ctx, storage.Filters{"order_id": orderID})
}

func (p *Postgres) FindByUser(ctx context.Context, userID string, page storage.PageRequest) (storage.Page[*models.Payment], error) {
	return p.FindAllPaginated(ctx, storage.Filters{"user_id": userID}, page)
}

// MethodPostgres is the SQL-backed payment method repository.
type MethodPostgres struct {
	*postgres.Store[*models.PaymentMethod]
}

func NewMethodPostgres(db *sql.DB, guard *ownership.Guard, sink postgres.EventSink, log *slog.Logger) (*MethodPostgres, error) {
	inner, err := postgres.New(postgres.Config[*models.PaymentMethod]{
		DB:         db,
		Guard:      guard,
		Table:      MethodTable,
		AuditTable: AuditTable,
		NewRecord:  func() *models.PaymentMethod { return &models.PaymentMethod{} },
		Sink:       sink,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return &MethodPostgres{Store: inner}, nil
}

func (p *MethodPostgres) FindByUser(ctx context.Context, userID string) ([]*models.PaymentMethod, error) {
	return p.FindAll(ctx, storage.Filters{"user_id": userID})
}

func Schema() string {
	return postgres.Schema(Table) + postgres.Schema(MethodTable)
}
