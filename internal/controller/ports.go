// Package controller wires the controller context: repository port, fleet
// service, and health scoring.
package controller

import (
	"context"

	"vendcore/internal/controller/models"
	"vendcore/internal/storage"
)

// Repository is the persistence port for controllers. It adds identity
// lookups to the generic aggregate capabilities.
type Repository interface {
	storage.AggregateStore[*models.Controller]

	FindByMACAddress(ctx context.Context, mac string) (*models.Controller, error)
	FindBySerialNumber(ctx context.Context, serial string) (*models.Controller, error)
	FindByStatus(ctx context.Context, status models.Status) ([]*models.Controller, error)
}
