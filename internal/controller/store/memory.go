// Package store provides controller persistence adapters.
package store

import (
	"context"
	"strings"

	"vendcore/internal/controller/models"
	"vendcore/internal/storage"
	"vendcore/internal/storage/memory"
)

// Memory is the in-memory controller repository used by tests and local runs.
type Memory struct {
	*memory.Store[*models.Controller]
}

func NewMemory(opts ...memory.Option[*models.Controller]) *Memory {
	return &Memory{Store: memory.New[*models.Controller](opts...)}
}

func (m *Memory) FindByMACAddress(ctx context.Context, mac string) (*models.Controller, error) {
	return m.FindOne(ctx, storage.Filters{"mac_address": strings.ToLower(mac)})
}

func (m *Memory) FindBySerialNumber(ctx context.Context, serial string) (*models.Controller, error) {
	return m.FindOne(ctx, storage.Filters{"serial_number": serial})
}

func (m *Memory) FindByStatus(ctx context.Context, status models.Status) ([]*models.Controller, error) {
	return m.FindAll(ctx, storage.Filters{"status": status})
}
