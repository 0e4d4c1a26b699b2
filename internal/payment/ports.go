// Package payment wires the payment context: repository ports, the gateway
// port, charge orchestration, and risk screening.
package payment

import (
	"context"

	"vendcore/internal/payment/models"
	"vendcore/internal/storage"
)

// Repository is the persistence port for payments.
type Repository interface {
	storage.AggregateStore[*models.Payment]

	FindByOrder(ctx context.Context, orderID string) ([]*models.Payment, error)
	FindByUser(ctx context.Context, userID string, page storage.PageRequest) (storage.Page[*models.Payment], error)
}

// MethodRepository is the persistence port for stored payment methods.
type MethodRepository interface {
	storage.AggregateStore[*models.PaymentMethod]

	FindByUser(ctx context.Context, userID string) ([]*models.PaymentMethod, error)
}

// ChargeRequest is what the gateway needs to move money.
type ChargeRequest struct {
	PaymentID    string
	GatewayToken string
	AmountCents  int64
	Currency     string
}

// Gateway is the external payment processor port.
//
//go:generate mockgen -source=ports.go -destination=mocks/gateway_mock.go -package=mocks Gateway
type Gateway interface {
	// Charge returns the gateway reference for a settled charge.
	Charge(ctx context.Context, req ChargeRequest) (string, error)
	// Refund reverses a settled charge by its gateway reference.
	Refund(ctx context.Context, gatewayRef string, amountCents int64) error
}
