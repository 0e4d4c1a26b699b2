// Package order wires the order context: repository port and checkout
// service.
package order

import (
	"context"

	"vendcore/internal/order/models"
	"vendcore/internal/storage"
)

// Repository is the persistence port for orders. The purchase-history
// queries feed loyalty grading.
type Repository interface {
	storage.AggregateStore[*models.Order]

	FindByUser(ctx context.Context, userID string, page storage.PageRequest) (storage.Page[*models.Order], error)
	TotalSpentCents(ctx context.Context, userID string) (int64, error)
	CompletedOrders(ctx context.Context, userID string) (int, error)
}
