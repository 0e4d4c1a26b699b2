package service

import (
	"context"

	"vendcore/internal/events"
	"vendcore/pkg/domain"
)

// PaymentSucceededHandler moves the paid-for order forward when the payment
// context reports a settled charge. Top-up payments carry no order and are
// ignored. The caller wraps it with dedupe middleware.
func (s *Service) PaymentSucceededHandler() events.Handler {
	return events.HandlerFunc(func(ctx context.Context, event domain.Event) error {
		orderID, _ := event.Payload["order_id"].(string)
		if orderID == "" {
			return nil
		}
		res := s.MarkPaid(ctx, orderID, event.AggregateID)
		if res.Err() != nil {
			s.log.Error("marking order paid failed",
				"order_id", orderID, "payment_id", event.AggregateID, "error", res.Err())
			return res.Err()
		}
		return nil
	})
}
