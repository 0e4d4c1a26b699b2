// Package store provides device persistence adapters.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"vendcore/internal/device/models"
	"vendcore/internal/ownership"
	"vendcore/internal/storage"
	"vendcore/internal/storage/memory"
	"vendcore/internal/storage/postgres"
)

const (
	Table      = "devices"
	AuditTable = "machines_audit_log"
)

// Memory is the in-memory device repository.
type Memory struct {
	*memory.Store[*models.Device]
}

func NewMemory(opts ...memory.Option[*models.Device]) *Memory {
	return &Memory{Store: memory.New[*models.Device](opts...)}
}

func (m *Memory) FindByMACAddress(ctx context.Context, mac string) (*models.Device, error) {
	return m.FindOne(ctx, storage.Filters{"mac_address": strings.ToLower(mac)})
}

func (m *Memory) FindByController(ctx context.Context, controllerID string) ([]*models.Device, error) {
	return m.FindAll(ctx, storage.Filters{"controller_id": controllerID})
}

func (m *Memory) FindByContainer(ctx context.Context, containerID string) ([]*models.Device, error) {
	return m.FindAll(ctx, storage.Filters{"container_id": containerID})
}

// Postgres is the SQL-backed device repository.
type Postgres struct {
	*postgres.Store[*models.Device]
}

func NewPostgres(db *sql.DB, guard *ownership.Guard, sink postgres.EventSink, log *slog.Logger) (*Postgres, error) {
	inner, err := postgres.New(postgres.Config[*models.Device]{
		DB:         db,
		Guard:      guard,
		Table:      Table,
		AuditTable: AuditTable,
		NewRecord:  func() *models.Device { return &models.Device{} },
		Sink:       sink,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return &Postgres{Store: inner}, nil
}

func (p *Postgres) FindByMACAddress(ctx context.Context, mac string) (*models.Device, error) {
	return p.FindOne(ctx, storage.Filters{"mac_address": strings.ToLower(mac)})
}

func (p *Postgres) FindByController(ctx context.Context, controllerID string) ([]*models.Device, error) {
	return p.FindAll(ctx, storage.Filters{"controller_id": controllerID})
}

func (p *Postgres) FindByContainer(ctx context.Context, containerID string) ([]*models.Device, error) {
	return p.FindAll(ctx, storage.Filters{"container_id": containerID})
}

func Schema() string {
	return postgres.Schema(Table) + postgres.UniqueIndex(Table, "mac_address")
}
