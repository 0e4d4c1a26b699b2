// Package gateway holds local adapters for the payment processor port.
// Real processor integrations live outside this module; the offline adapter
// covers machines that settle on-device and reconcile later.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"vendcore/internal/payment"
)

// Offline approves charges locally and issues its own references. Captured
// charges are reconciled against the processor out of band, so Refund only
// checks that the reference was issued here.
type Offline struct {
	log *slog.Logger

	mu     sync.Mutex
	issued map[string]int64
}

func NewOffline(log *slog.Logger) *Offline {
	if log == nil {
		log = slog.Default()
	}
	return &Offline{log: log, issued: make(map[string]int64)}
}

func (g *Offline) Charge(ctx context.Context, req payment.ChargeRequest) (string, error) {
	if req.GatewayToken == "" {
		return "", fmt.Errorf("charge %s: missing gateway token", req.PaymentID)
	}
	ref := "offline-" + uuid.NewString()

	g.mu.Lock()
	g.issued[ref] = req.AmountCents
	g.mu.Unlock()

	g.log.InfoContext(ctx, "charge captured offline",
		"payment_id", req.PaymentID, "gateway_ref", ref, "amount_cents", req.AmountCents)
	return ref, nil
}

func (g *Offline) Refund(ctx context.Context, gatewayRef string, amountCents int64) error {
	g.mu.Lock()
	captured, ok := g.issued[gatewayRef]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("refund %s: unknown gateway reference", gatewayRef)
	}
	if amountCents > captured {
		return fmt.Errorf("refund %s: %d exceeds captured %d", gatewayRef, amountCents, captured)
	}

	g.log.InfoContext(ctx, "refund queued for reconciliation",
		"gateway_ref", gatewayRef, "amount_cents", amountCents)
	return nil
}
