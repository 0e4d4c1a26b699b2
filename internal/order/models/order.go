// Package models defines the Order aggregate for the commerce service.
// Amounts are integer cents throughout; floating point never touches money.
package models

import (
	"time"

	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
)

const AggregateType = "order"

const (
	EventOrderPlaced    domain.EventType = "OrderPlaced"
	EventOrderPaid      domain.EventType = "OrderPaid"
	EventOrderFulfilled domain.EventType = "OrderFulfilled"
	EventOrderCancelled domain.EventType = "OrderCancelled"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPlaced    Status = "placed"
	StatusPaid      Status = "paid"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
)

// Order collects items while in draft; once placed, the item list and the
// amounts are frozen.
//
// Invariants:
//   - TotalCents = SubtotalCents + TaxCents + DeliveryFeeCents - DiscountCents
//   - SubtotalCents equals the sum of the item line totals
//   - A placed order has at least one item
type Order struct {
	domain.Entity
	domain.Audit
	domain.SoftDelete
	domain.Recorder `json:"-"`

	UserID           string             `json:"user_id"`
	Items            []domain.OrderItem `json:"items"`
	Status           Status             `json:"status"`
	SubtotalCents    int64              `json:"subtotal_cents"`
	TaxCents         int64              `json:"tax_cents"`
	DeliveryFeeCents int64              `json:"delivery_fee_cents"`
	DiscountCents    int64              `json:"discount_cents"`
	TotalCents       int64              `json:"total_cents"`
	PlacedAt         *time.Time         `json:"placed_at,omitempty"`
	CancelReason     string             `json:"cancel_reason,omitempty"`
}

func NewOrder(userID string) (*Order, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "order needs a user")
	}
	return &Order{
		UserID: userID,
		Status: StatusDraft,
	}, nil
}

// AddItem appends a line while the order is still a draft.
func (o *Order) AddItem(item domain.OrderItem, now time.Time) error {
	if o.Status != StatusDraft {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"items cannot be added to a %s order", o.Status)
	}
	if item.ProductID == "" {
		return dErrors.New(dErrors.CodeValidation, "order item needs a product")
	}
	if item.Quantity <= 0 {
		return dErrors.New(dErrors.CodeValidation, "order item quantity must be positive")
	}
	if item.UnitPriceCents < 0 {
		return dErrors.New(dErrors.CodeValidation, "order item price cannot be negative")
	}
	o.Items = append(o.Items, item)
	o.recalculate()
	o.Touch(now)
	return nil
}

// Place freezes the order and emits OrderPlaced with the lines the machines
// side needs for stock reservation.
func (o *Order) Place(taxCents, deliveryFeeCents, discountCents int64, now time.Time) (domain.Event, error) {
	if o.Status != StatusDraft {
		return domain.Event{}, dErrors.Newf(dErrors.CodeInvariantViolation,
			"a %s order cannot be placed", o.Status)
	}
	if len(o.Items) == 0 {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation, "order has no items")
	}
	if taxCents < 0 || deliveryFeeCents < 0 || discountCents < 0 {
		return domain.Event{}, dErrors.New(dErrors.CodeValidation, "order adjustments cannot be negative")
	}
	o.TaxCents = taxCents
	o.DeliveryFeeCents = deliveryFeeCents
	o.DiscountCents = discountCents
	o.recalculate()
	if o.TotalCents < 0 {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation,
			"discount exceeds the order total")
	}
	o.Status = StatusPlaced
	t := now
	o.PlacedAt = &t
	o.Touch(now)

	items := make([]map[string]any, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, map[string]any{
			"product_id":       item.ProductID,
			"product_name":     item.ProductName,
			"quantity":         item.Quantity,
			"unit_price_cents": item.UnitPriceCents,
		})
	}
	event := domain.NewEvent(EventOrderPlaced, o.ID, AggregateType, now, map[string]any{
		"user_id":     o.UserID,
		"items":       items,
		"total_cents": o.TotalCents,
	})
	event = event.WithUser(o.UserID)
	o.Record(event)
	return event, nil
}

// MarkPaid records that payment settled.
func (o *Order) MarkPaid(paymentID string, now time.Time) (domain.Event, error) {
	if o.Status != StatusPlaced {
		return domain.Event{}, dErrors.Newf(dErrors.CodeInvariantViolation,
			"a %s order cannot be marked paid", o.Status)
	}
	o.Status = StatusPaid
	o.Touch(now)
	event := domain.NewEvent(EventOrderPaid, o.ID, AggregateType, now, map[string]any{
		"payment_id": paymentID,
	})
	o.Record(event)
	return event, nil
}

// MarkFulfilled records that the machine dispensed the goods.
func (o *Order) MarkFulfilled(now time.Time) (domain.Event, error) {
	if o.Status != StatusPaid {
		return domain.Event{}, dErrors.Newf(dErrors.CodeInvariantViolation,
			"a %s order cannot be fulfilled", o.Status)
	}
	o.Status = StatusFulfilled
	o.Touch(now)
	event := domain.NewEvent(EventOrderFulfilled, o.ID, AggregateType, now, nil)
	o.Record(event)
	return event, nil
}

// Cancel aborts an order that has not been fulfilled.
func (o *Order) Cancel(reason string, now time.Time) (domain.Event, error) {
	switch o.Status {
	case StatusFulfilled, StatusCancelled:
		return domain.Event{}, dErrors.Newf(dErrors.CodeInvariantViolation,
			"a %s order cannot be cancelled", o.Status)
	}
	previous := o.Status
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.Touch(now)
	event := domain.NewEvent(EventOrderCancelled, o.ID, AggregateType, now, map[string]any{
		"previous": string(previous),
		"reason":   reason,
	})
	o.Record(event)
	return event, nil
}

// CheckAmounts verifies the money invariant. Adapters run it before
// persisting so a drifted document never reaches the database.
func (o *Order) CheckAmounts() error {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.LineTotalCents()
	}
	if subtotal != o.SubtotalCents {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"order subtotal %d does not match item lines %d", o.SubtotalCents, subtotal)
	}
	want := o.SubtotalCents + o.TaxCents + o.DeliveryFeeCents - o.DiscountCents
	if o.TotalCents != want {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"order total %d does not match amount breakdown %d", o.TotalCents, want)
	}
	return nil
}

func (o *Order) recalculate() {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.LineTotalCents()
	}
	o.SubtotalCents = subtotal
	o.TotalCents = subtotal + o.TaxCents + o.DeliveryFeeCents - o.DiscountCents
}

func (o *Order) Clone() *Order {
	clone := *o
	clone.Recorder = domain.Recorder{}
	clone.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.DeletedAt != nil {
		t := *o.DeletedAt
		clone.DeletedAt = &t
	}
	if o.PlacedAt != nil {
		t := *o.PlacedAt
		clone.PlacedAt = &t
	}
	return &clone
}

func (o *Order) Match(filters storage.Filters) (bool, error) {
	for field, want := range filters {
		switch field {
		case "user_id":
			if o.UserID != want {
				return false, nil
			}
		case "status":
			s, _ := want.(string)
			if v, ok := want.(Status); ok {
				s = string(v)
			}
			if string(o.Status) != s {
				return false, nil
			}
		default:
			return false, storage.ErrUnknownField(field)
		}
	}
	return true, nil
}

// Patch is the typed update for orders. Only the discount of a draft order
// is adjustable; everything else moves through lifecycle operations.
type Patch struct {
	DiscountCents *int64
}

var _ storage.Patch[*Order] = Patch{}

func (p Patch) Apply(o *Order) error {
	if p.DiscountCents != nil {
		if o.Status != StatusDraft {
			return dErrors.New(dErrors.CodeInvariantViolation,
				"only draft orders can change discounts")
		}
		if *p.DiscountCents < 0 {
			return dErrors.New(dErrors.CodeValidation, "discount cannot be negative")
		}
		o.DiscountCents = *p.DiscountCents
		o.recalculate()
	}
	return nil
}

func (p Patch) FieldNames() []string {
	if p.DiscountCents != nil {
		return []string{"discount_cents"}
	}
	return nil
}
