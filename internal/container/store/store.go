// Package store provides container persistence adapters.
package store

import (
	"context"
	"database/sql"
	"log/slog"

	"vendcore/internal/container/models"
	"vendcore/internal/ownership"
	"vendcore/internal/storage"
	"vendcore/internal/storage/memory"
	"vendcore/internal/storage/postgres"
)

// Containers are a shared table: machines writes, commerce reads the
// projection the ownership guard resolves.
const (
	Table      = "containers"
	AuditTable = "machines_audit_log"
)

type Memory struct {
	*memory.Store[*models.Container]
}

func NewMemory(opts ...memory.Option[*models.Container]) *Memory {
	return &Memory{Store: memory.New[*models.Container](opts...)}
}

func (m *Memory) FindByController(ctx context.Context, controllerID string) ([]*models.Container, error) {
	return m.FindAll(ctx, storage.Filters{"controller_id": controllerID})
}

func (m *Memory) FindByProduct(ctx context.Context, productID string) ([]*models.Container, error) {
	return m.FindAll(ctx, storage.Filters{"product_id": productID})
}

func (m *Memory) FindByStatus(ctx context.Context, status models.Status) ([]*models.Container, error) {
	return m.FindAll(ctx, storage.Filters{"status": status})
}

type Postgres struct {
	*postgres.Store[*models.Container]
}

func NewPostgres(db *sql.DB, guard *ownership.Guard, sink postgres.EventSink, log *slog.Logger) (*Postgres, error) {
	inner, err := postgres.New(postgres.Config[*models.Container]{
		DB:         db,
		Guard:      guard,
		Table:      Table,
		AuditTable: AuditTable,
		NewRecord:  func() *models.Container { return &models.Container{} },
		Sink:       sink,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return &Postgres{Store: inner}, nil
}

func (p *Postgres) FindByController(ctx context.Context, controllerID string) ([]*models.Container, error) {
	return p.FindAll(ctx, storage.Filters{"controller_id": controllerID})
}

func (p *Postgres) FindByProduct(ctx context.Context, productID string) ([]*models.Container, error) {
	return p.FindAll(ctx, storage.Filters{"product_id": productID})
}

func (p *Postgres) FindByStatus(ctx context.Context, status models.Status) ([]*models.Container, error) {
	return p.FindAll(ctx, storage.Filters{"status": status})
}

// Schema returns the containers DDL plus the versioned projection commerce
// reads from.
func Schema() string {
	return postgres.Schema(Table) + postgres.ProjectionView(Table, 1)
}
