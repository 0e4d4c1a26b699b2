// Package device wires the device context: repository port and enrollment
// service.
package device

import (
	"context"

	"vendcore/internal/device/models"
	"vendcore/internal/storage"
)

// Repository is the persistence port for devices.
type Repository interface {
	storage.AggregateStore[*models.Device]

	FindByMACAddress(ctx context.Context, mac string) (*models.Device, error)
	FindByController(ctx context.Context, controllerID string) ([]*models.Device, error)
	FindByContainer(ctx context.Context, containerID string) ([]*models.Device, error)
}
