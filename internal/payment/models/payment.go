// Package models defines the Payment and PaymentMethod aggregates for the
// commerce service. Amounts are integer cents.
package models

import (
	"time"

	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
)

const (
	AggregateType       = "payment"
	MethodAggregateType = "payment_method"
)

const (
	EventPaymentInitiated domain.EventType = "PaymentInitiated"
	EventPaymentSucceeded domain.EventType = "PaymentSucceeded"
	EventPaymentFailed    domain.EventType = "PaymentFailed"
	EventPaymentCancelled domain.EventType = "PaymentCancelled"
	EventPaymentRefunded  domain.EventType = "PaymentRefunded"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusSucceeded, StatusFailed, StatusCancelled},
	StatusSucceeded:  {StatusRefunded},
	StatusFailed:     {},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible. Refunded is
// terminal: a refunded payment never changes again.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Payment charges a user through one payment method. OrderID is empty for
// wallet top-ups.
type Payment struct {
	domain.Entity
	domain.Audit
	domain.SoftDelete
	domain.Recorder `json:"-"`

	UserID        string `json:"user_id"`
	OrderID       string `json:"order_id,omitempty"`
	MethodID      string `json:"method_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Status        Status `json:"status"`
	GatewayRef    string `json:"gateway_ref,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func NewPayment(userID, orderID, methodID string, amountCents int64, currency string, now time.Time) (*Payment, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "payment needs a user")
	}
	if methodID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "payment needs a payment method")
	}
	if amountCents <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "payment amount must be positive")
	}
	if len(currency) != 3 {
		return nil, dErrors.New(dErrors.CodeValidation, "currency must be a 3-letter code")
	}
	p := &Payment{
		UserID:      userID,
		OrderID:     orderID,
		MethodID:    methodID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      StatusPending,
	}
	p.Record(domain.NewEvent(EventPaymentInitiated, "", AggregateType, now, map[string]any{
		"user_id":      userID,
		"order_id":     orderID,
		"amount_cents": amountCents,
		"currency":     currency,
	}).WithUser(userID))
	return p, nil
}

// IsTopUp reports whether the payment funds a wallet rather than an order.
func (p *Payment) IsTopUp() bool { return p.OrderID == "" }

func (p *Payment) transition(next Status, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"payment cannot move from %s to %s", p.Status, next)
	}
	p.Status = next
	p.Touch(now)
	return nil
}

func (p *Payment) StartProcessing(now time.Time) error {
	return p.transition(StatusProcessing, now)
}

func (p *Payment) Succeed(gatewayRef string, now time.Time) (domain.Event, error) {
	if err := p.transition(StatusSucceeded, now); err != nil {
		return domain.Event{}, err
	}
	p.GatewayRef = gatewayRef
	event := domain.NewEvent(EventPaymentSucceeded, p.ID, AggregateType, now, map[string]any{
		"order_id":     p.OrderID,
		"amount_cents": p.AmountCents,
		"gateway_ref":  gatewayRef,
	}).WithUser(p.UserID)
	p.Record(event)
	return event, nil
}

func (p *Payment) Fail(reason string, now time.Time) (domain.Event, error) {
	if err := p.transition(StatusFailed, now); err != nil {
		return domain.Event{}, err
	}
	p.FailureReason = reason
	event := domain.NewEvent(EventPaymentFailed, p.ID, AggregateType, now, map[string]any{
		"order_id": p.OrderID,
		"reason":   reason,
	}).WithUser(p.UserID)
	p.Record(event)
	return event, nil
}

func (p *Payment) CancelPayment(reason string, now time.Time) (domain.Event, error) {
	if err := p.transition(StatusCancelled, now); err != nil {
		return domain.Event{}, err
	}
	p.FailureReason = reason
	event := domain.NewEvent(EventPaymentCancelled, p.ID, AggregateType, now, map[string]any{
		"reason": reason,
	}).WithUser(p.UserID)
	p.Record(event)
	return event, nil
}

func (p *Payment) Refund(now time.Time) (domain.Event, error) {
	if err := p.transition(StatusRefunded, now); err != nil {
		return domain.Event{}, err
	}
	event := domain.NewEvent(EventPaymentRefunded, p.ID, AggregateType, now, map[string]any{
		"order_id":     p.OrderID,
		"amount_cents": p.AmountCents,
	}).WithUser(p.UserID)
	p.Record(event)
	return event, nil
}

func (p *Payment) Clone() *Payment {
	clone := *p
	clone.Recorder = domain.Recorder{}
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}

func (p *Payment) Match(filters storage.Filters) (bool, error) {
	for field, want := range filters {
		switch field {
		case "user_id":
			if p.UserID != want {
				return false, nil
			}
		case "order_id":
			if p.OrderID != want {
				return false, nil
			}
		case "method_id":
			if p.MethodID != want {
				return false, nil
			}
		case "status":
			s, _ := want.(string)
			if v, ok := want.(Status); ok {
				s = string(v)
			}
			if string(p.Status) != s {
				return false, nil
			}
		default:
			return false, storage.ErrUnknownField(field)
		}
	}
	return true, nil
}

// Patch exists to satisfy the repository contract; payments change only
// through their lifecycle operations.
type Patch struct {
	Status        *Status
	GatewayRef    *string
	FailureReason *string
}

var _ storage.Patch[*Payment] = Patch{}

func (p Patch) Apply(payment *Payment) error {
	if p.Status != nil {
		payment.Status = *p.Status
	}
	if p.GatewayRef != nil {
		payment.GatewayRef = *p.GatewayRef
	}
	if p.FailureReason != nil {
		payment.FailureReason = *p.FailureReason
	}
	return nil
}

func (p Patch) FieldNames() []string {
	var fields []string
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.GatewayRef != nil {
		fields = append(fields, "gateway_ref")
	}
	if p.FailureReason != nil {
		fields = append(fields, "failure_reason")
	}
	return fields
}
