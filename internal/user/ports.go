// Package user wires the user context: repository port, account service, and
// loyalty scoring.
package user

import (
	"context"

	"vendcore/internal/storage"
	"vendcore/internal/user/models"
)

// Repository is the persistence port for users.
type Repository interface {
	storage.AggregateStore[*models.User]

	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByRole(ctx context.Context, role models.Role) ([]*models.User, error)
}
