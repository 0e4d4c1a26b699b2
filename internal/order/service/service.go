// Package service implements checkout for the commerce service.
package service

import (
	"context"
	"errors"
	"log/slog"

	"vendcore/internal/order"
	"vendcore/internal/order/models"
	"vendcore/internal/platform/metrics"
	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/requestcontext"
	"vendcore/pkg/result"
)

// BuyerDirectory answers whether a user may place orders; the user
// repository satisfies it through a thin adapter.
type BuyerDirectory interface {
	CanPurchase(ctx context.Context, userID string) (bool, error)
}

type Service struct {
	store   order.Repository
	buyers  BuyerDirectory
	log     *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store order.Repository, buyers BuyerDirectory, opts ...Option) *Service {
	s := &Service{store: store, buyers: buyers, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", "order")
	return s
}

type PlaceCommand struct {
	UserID           string
	Items            []domain.OrderItem
	TaxCents         int64
	DeliveryFeeCents int64
	DiscountCents    int64
}

// Place runs the whole checkout in one step: build the order, freeze the
// amounts, verify the money invariant, and persist together with the
// OrderPlaced event.
func (s *Service) Place(ctx context.Context, cmd PlaceCommand) result.Result[*models.Order] {
	ok, err := s.buyers.CanPurchase(ctx, cmd.UserID)
	if err != nil {
		return result.Err[*models.Order](s.translate(err, "check buyer"))
	}
	if !ok {
		return result.Err[*models.Order](dErrors.New(dErrors.CodeUnauthorized,
			"user cannot place orders"))
	}
	now := requestcontext.Now(ctx)
	o, err := models.NewOrder(cmd.UserID)
	if err != nil {
		return result.Err[*models.Order](err)
	}
	for _, item := range cmd.Items {
		if err := o.AddItem(item, now); err != nil {
			return result.Err[*models.Order](err)
		}
	}
	if _, err := o.Place(cmd.TaxCents, cmd.DeliveryFeeCents, cmd.DiscountCents, now); err != nil {
		return result.Err[*models.Order](err)
	}
	if err := o.CheckAmounts(); err != nil {
		return result.Err[*models.Order](err)
	}
	saved, err := s.store.SaveWithEvents(ctx, o, o.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Order](s.translate(err, "save order"))
	}
	s.metrics.IncAggregateRegistered(models.AggregateType)
	s.log.Info("order placed",
		"order_id", saved.ID, "user_id", saved.UserID, "total_cents", saved.TotalCents)
	return result.Ok(saved)
}

// Cancel aborts an order that has not been fulfilled yet.
func (s *Service) Cancel(ctx context.Context, id, reason string) result.Result[*models.Order] {
	o, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Order](s.translate(err, "load order"))
	}
	if _, err := o.Cancel(reason, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Order](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, o.EntityVersion(),
		lifecyclePatch{status: o.Status, cancelReason: reason}, o.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Order](s.translate(err, "persist cancellation"))
	}
	s.metrics.IncStatusTransition(models.AggregateType, string(models.StatusCancelled))
	s.log.Info("order cancelled", "order_id", id, "reason", reason)
	return result.Ok(updated)
}

// MarkPaid moves a placed order to paid; the payment context calls it when a
// charge settles.
func (s *Service) MarkPaid(ctx context.Context, id, paymentID string) result.Result[*models.Order] {
	o, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Order](s.translate(err, "load order"))
	}
	if _, err := o.MarkPaid(paymentID, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Order](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, o.EntityVersion(),
		lifecyclePatch{status: o.Status}, o.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Order](s.translate(err, "persist payment state"))
	}
	s.metrics.IncStatusTransition(models.AggregateType, string(models.StatusPaid))
	return result.Ok(updated)
}

// MarkFulfilled records that the machine dispensed the order.
func (s *Service) MarkFulfilled(ctx context.Context, id string) result.Result[*models.Order] {
	o, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Order](s.translate(err, "load order"))
	}
	if _, err := o.MarkFulfilled(requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Order](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, o.EntityVersion(),
		lifecyclePatch{status: o.Status}, o.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Order](s.translate(err, "persist fulfilment"))
	}
	s.metrics.IncStatusTransition(models.AggregateType, string(models.StatusFulfilled))
	return result.Ok(updated)
}

func (s *Service) Get(ctx context.Context, id string) result.Result[*models.Order] {
	o, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Order](s.translate(err, "load order"))
	}
	return result.Ok(o)
}

func (s *Service) ListForUser(ctx context.Context, userID string, page storage.PageRequest) result.Result[storage.Page[*models.Order]] {
	listed, err := s.store.FindByUser(ctx, userID, page)
	if err != nil {
		return result.Err[storage.Page[*models.Order]](s.translate(err, "list orders"))
	}
	return result.Ok(listed)
}

func (s *Service) translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "order not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		s.metrics.IncVersionConflict(models.AggregateType)
		return dErrors.New(dErrors.CodeConflict, "order was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}

type lifecyclePatch struct {
	status       models.Status
	cancelReason string
}

func (p lifecyclePatch) Apply(o *models.Order) error {
	o.Status = p.status
	if p.cancelReason != "" {
		o.CancelReason = p.cancelReason
	}
	return nil
}

func (p lifecyclePatch) FieldNames() []string { return []string{"status"} }
