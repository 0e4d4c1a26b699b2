// Package store provides user persistence adapters.
package store

import (
	"context"
	"database/sql"
	"log/slog"

	"vendcore/internal/ownership"
	"vendcore/internal/storage"
	"vendcore/internal/storage/memory"
	"vendcore/internal/storage/postgres"
	"vendcore/internal/user/models"
)

const (
	Table      = "users"
	AuditTable = "commerce_audit_log"
)

type Memory struct {
	*memory.Store[*models.User]
}

func NewMemory(opts ...memory.Option[*models.User]) *Memory {
	return &Memory{Store: memory.New[*models.User](opts...)}
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.FindOne(ctx, storage.Filters{"email": models.NormalizeEmail(email)})
}

func (m *Memory) FindByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	return m.FindAll(ctx, storage.Filters{"role": role})
}

type Postgres struct {
	*postgres.Store[*models.User]
}

func NewPostgres(db *sql.DB, guard *ownership.Guard, sink postgres.EventSink, log *slog.Logger) (*Postgres, error) {
	inner, err := postgres.New(postgres.Config[*models.User]{
		DB:         db,
		Guard:      guard,
		Table:      Table,
		AuditTable: AuditTable,
		NewRecord:  func() *models.User { return &models.User{} },
		Sink:       sink,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return &Postgres{Store: inner}, nil
}

func (p *Postgres) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.FindOne(ctx, storage.Filters{"email": models.NormalizeEmail(email)})
}

func (p *Postgres) FindByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	return p.FindAll(ctx, storage.Filters{"role": role})
}

func Schema() string {
	return postgres.Schema(Table) + postgres.UniqueIndex(Table, "email")
}
