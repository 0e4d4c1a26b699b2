// Package container wires the container context: repository port, stock
// service, order-placed reaction, and replenishment planning.
package container

import (
	"context"

	"vendcore/internal/container/models"
	"vendcore/internal/storage"
)

// Repository is the persistence port for containers.
type Repository interface {
	storage.AggregateStore[*models.Container]

	FindByController(ctx context.Context, controllerID string) ([]*models.Container, error)
	FindByProduct(ctx context.Context, productID string) ([]*models.Container, error)
	FindByStatus(ctx context.Context, status models.Status) ([]*models.Container, error)
}
