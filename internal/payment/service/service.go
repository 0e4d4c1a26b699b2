// Package service orchestrates charges and refunds for the commerce service.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vendcore/internal/payment"
	"vendcore/internal/payment/models"
	"vendcore/internal/platform/metrics"
	"vendcore/internal/storage"
	dErrors "vendcore/pkg/domain-errors"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/requestcontext"
	"vendcore/pkg/result"
)

// Screener rejects charges that break exposure limits before any money
// moves. It is handed the user's settled payment history and performs no
// I/O of its own.
type Screener interface {
	Screen(userID string, amountCents int64, recentSettled []*models.Payment, now time.Time) error
}

type Service struct {
	store    payment.Repository
	methods  payment.MethodRepository
	gateway  payment.Gateway
	screener Screener
	log      *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store payment.Repository, methods payment.MethodRepository, gateway payment.Gateway, screener Screener, opts ...Option) *Service {
	s := &Service{
		store:    store,
		methods:  methods,
		gateway:  gateway,
		screener: screener,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", "payment")
	return s
}

type ChargeCommand struct {
	UserID string
	// OrderID is empty for wallet top-ups.
	OrderID     string
	MethodID    string
	AmountCents int64
	Currency    string
}

// Charge screens, persists the pending payment, and runs the gateway call.
// The payment row exists before the gateway is contacted, so a crash
// mid-charge leaves a processing row to reconcile rather than silence.
func (s *Service) Charge(ctx context.Context, cmd ChargeCommand) result.Result[*models.Payment] {
	now := requestcontext.Now(ctx)
	p, err := models.NewPayment(cmd.UserID, cmd.OrderID, cmd.MethodID, cmd.AmountCents, cmd.Currency, now)
	if err != nil {
		return result.Err[*models.Payment](err)
	}
	method, err := s.methods.FindByID(ctx, cmd.MethodID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return result.Err[*models.Payment](dErrors.New(dErrors.CodeNotFound, "payment method not found"))
		}
		return result.Err[*models.Payment](s.translate(err, "load payment method"))
	}
	if method.UserID != cmd.UserID {
		return result.Err[*models.Payment](dErrors.New(dErrors.CodeUnauthorized,
			"payment method belongs to another user"))
	}
	settled, err := s.store.FindAll(ctx, storage.Filters{
		"user_id": cmd.UserID,
		"status":  models.StatusSucceeded,
	})
	if err != nil {
		return result.Err[*models.Payment](s.translate(err, "load settled payments"))
	}
	if err := s.screener.Screen(cmd.UserID, cmd.AmountCents, settled, now); err != nil {
		return result.Err[*models.Payment](err)
	}
	if err := p.StartProcessing(now); err != nil {
		return result.Err[*models.Payment](err)
	}
	saved, err := s.store.SaveWithEvents(ctx, p, p.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Payment](s.translate(err, "save payment"))
	}
	p.MarkEventsCommitted()

	gatewayRef, chargeErr := s.gateway.Charge(ctx, payment.ChargeRequest{
		PaymentID:    saved.ID,
		GatewayToken: method.GatewayToken,
		AmountCents:  cmd.AmountCents,
		Currency:     cmd.Currency,
	})
	if chargeErr != nil {
		return s.settleFailure(ctx, saved, chargeErr)
	}
	return s.settleSuccess(ctx, saved, gatewayRef)
}

func (s *Service) settleSuccess(ctx context.Context, p *models.Payment, gatewayRef string) result.Result[*models.Payment] {
	if _, err := p.Succeed(gatewayRef, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Payment](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, p.ID, p.EntityVersion(),
		settlePatch{status: p.Status, gatewayRef: gatewayRef}, p.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Payment](s.translate(err, "persist settled payment"))
	}
	s.metrics.IncStatusTransition(models.AggregateType, string(models.StatusSucceeded))
	s.log.Info("payment settled",
		"payment_id", p.ID, "order_id", p.OrderID, "amount_cents", p.AmountCents)
	return result.Ok(updated)
}

func (s *Service) settleFailure(ctx context.Context, p *models.Payment, cause error) result.Result[*models.Payment] {
	if _, err := p.Fail(cause.Error(), requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Payment](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, p.ID, p.EntityVersion(),
		settlePatch{status: p.Status, failureReason: cause.Error()}, p.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Payment](s.translate(err, "persist failed payment"))
	}
	s.metrics.IncStatusTransition(models.AggregateType, string(models.StatusFailed))
	s.log.Warn("payment failed",
		"payment_id", p.ID, "order_id", p.OrderID, "error", cause)
	return result.Ok(updated)
}

// Refund reverses a settled payment. A refunded payment is immutable; a
// second refund is an invariant violation.
func (s *Service) Refund(ctx context.Context, id string) result.Result[*models.Payment] {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Payment](s.translate(err, "load payment"))
	}
	if _, err := p.Refund(requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Payment](err)
	}
	if err := s.gateway.Refund(ctx, p.GatewayRef, p.AmountCents); err != nil {
		return result.Err[*models.Payment](dErrors.Wrap(err, dErrors.CodeInternal, "gateway refund"))
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, p.EntityVersion(),
		settlePatch{status: p.Status}, p.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Payment](s.translate(err, "persist refund"))
	}
	s.metrics.IncStatusTransition(models.AggregateType, string(models.StatusRefunded))
	s.log.Info("payment refunded", "payment_id", id, "amount_cents", p.AmountCents)
	return result.Ok(updated)
}

// Cancel aborts a payment that has not settled.
func (s *Service) Cancel(ctx context.Context, id, reason string) result.Result[*models.Payment] {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Payment](s.translate(err, "load payment"))
	}
	if _, err := p.CancelPayment(reason, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Payment](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, p.EntityVersion(),
		settlePatch{status: p.Status, failureReason: reason}, p.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Payment](s.translate(err, "persist cancellation"))
	}
	return result.Ok(updated)
}

// AddMethod stores a tokenized payment instrument.
func (s *Service) AddMethod(ctx context.Context, userID string, kind models.MethodKind, last4, gatewayToken string) result.Result[*models.PaymentMethod] {
	m, err := models.NewPaymentMethod(userID, kind, last4, gatewayToken)
	if err != nil {
		return result.Err[*models.PaymentMethod](err)
	}
	saved, err := s.methods.Save(ctx, m)
	if err != nil {
		return result.Err[*models.PaymentMethod](s.translate(err, "save payment method"))
	}
	s.log.Info("payment method added", "user_id", userID, "kind", kind)
	return result.Ok(saved)
}

func (s *Service) Get(ctx context.Context, id string) result.Result[*models.Payment] {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Payment](s.translate(err, "load payment"))
	}
	return result.Ok(p)
}

func (s *Service) ListForUser(ctx context.Context, userID string, page storage.PageRequest) result.Result[storage.Page[*models.Payment]] {
	listed, err := s.store.FindByUser(ctx, userID, page)
	if err != nil {
		return result.Err[storage.Page[*models.Payment]](s.translate(err, "list payments"))
	}
	return result.Ok(listed)
}

func (s *Service) translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "payment not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		s.metrics.IncVersionConflict(models.AggregateType)
		return dErrors.New(dErrors.CodeConflict, "payment was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}

type settlePatch struct {
	status        models.Status
	gatewayRef    string
	failureReason string
}

func (p settlePatch) Apply(payment *models.Payment) error {
	payment.Status = p.status
	if p.gatewayRef != "" {
		payment.GatewayRef = p.gatewayRef
	}
	if p.failureReason != "" {
		payment.FailureReason = p.failureReason
	}
	return nil
}

func (p settlePatch) FieldNames() []string { return []string{"status"} }
