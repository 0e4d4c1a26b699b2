package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"vendcore/internal/controller/models"
	"vendcore/internal/ownership"
	"vendcore/internal/storage"
	"vendcore/internal/storage/postgres"
)

// Table names owned by the machines service.
const (
	Table      = "controllers"
	AuditTable = "machines_audit_log"
)

// Postgres is the SQL-backed controller repository.
type Postgres struct {
	*postgres.Store[*models.Controller]
}

func NewPostgres(db *sql.DB, guard *ownership.Guard, sink postgres.EventSink, log *slog.Logger) (*Postgres, error) {
	inner, err := postgres.New(postgres.Config[*models.Controller]{
		DB:         db,
		Guard:      guard,
		Table:      Table,
		AuditTable: AuditTable,
		NewRecord:  func() *models.Controller { return &models.Controller{} },
		Sink:       sink,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return &Postgres{Store: inner}, nil
}

func (p *Postgres) FindByMACAddress(ctx context.Context, mac string) (*models.Controller, error) {
	return p.FindOne(ctx, storage.Filters{"mac_address": strings.ToLower(mac)})
}

func (p *Postgres) FindBySerialNumber(ctx context.Context, serial string) (*models.Controller, error) {
	return p.FindOne(ctx, storage.Filters{"serial_number": serial})
}

func (p *Postgres) FindByStatus(ctx context.Context, status models.Status) ([]*models.Controller, error) {
	return p.FindAll(ctx, storage.Filters{"status": status})
}

// Schema returns the DDL the controllers table needs, identity uniqueness
// included.
func Schema() string {
	return postgres.Schema(Table) +
		postgres.UniqueIndex(Table, "mac_address") +
		postgres.UniqueIndex(Table, "serial_number") +
		postgres.UniqueIndex(Table, "hardware_signature")
}
