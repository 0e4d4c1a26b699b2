package service

import (
	"context"
	"encoding/json"

	"vendcore/internal/events"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
)

// orderLine is the slice of an order-placed payload this context cares about.
type orderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderPlacedHandler reserves stock when commerce publishes an order.
// Delivery is at-least-once, so the caller wraps it with dedupe middleware;
// the handler itself assumes each event arrives once.
func (s *Service) OrderPlacedHandler() events.Handler {
	return events.HandlerFunc(func(ctx context.Context, event domain.Event) error {
		lines, err := decodeLines(event)
		if err != nil {
			return err
		}
		for _, line := range lines {
			res := s.ReserveForOrder(ctx, line.ProductID, line.Quantity, event.AggregateID)
			if res.Err() != nil {
				s.log.Error("stock reservation failed",
					"order_id", event.AggregateID, "product_id", line.ProductID, "error", res.Err())
				return res.Err()
			}
		}
		return nil
	})
}

// decodeLines goes through JSON so the handler accepts both in-process
// payloads and payloads that crossed the wire.
func decodeLines(event domain.Event) ([]orderLine, error) {
	raw, ok := event.Payload["items"]
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "order event carries no items")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "encode order items")
	}
	var lines []orderLine
	if err := json.Unmarshal(encoded, &lines); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "decode order items")
	}
	return lines, nil
}
