// Package service implements container stock operations for the machines
// service.
package service

import (
	"context"
	"errors"
	"log/slog"

	"vendcore/internal/container"
	"vendcore/internal/container/models"
	"vendcore/internal/container/planning"
	"vendcore/internal/platform/metrics"
	"vendcore/internal/storage"
	dErrors "vendcore/pkg/domain-errors"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/requestcontext"
	"vendcore/pkg/result"
)

// ControllerChecker answers whether a controller exists; the controller
// repository satisfies it.
type ControllerChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type Service struct {
	store       container.Repository
	controllers ControllerChecker
	planner     *planning.Planner
	log         *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPlanner(p *planning.Planner) Option {
	return func(s *Service) { s.planner = p }
}

func New(store container.Repository, controllers ControllerChecker, opts ...Option) *Service {
	s := &Service{store: store, controllers: controllers, planner: planning.NewPlanner(), log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", "container")
	return s
}

type RegisterCommand struct {
	Name         string
	ControllerID string
	ProductID    string
	Capacity     int
}

// Register creates an empty container bound to its controller for life.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) result.Result[*models.Container] {
	c, err := models.NewContainer(cmd.Name, cmd.ControllerID, cmd.ProductID, cmd.Capacity, requestcontext.Now(ctx))
	if err != nil {
		return result.Err[*models.Container](err)
	}
	ok, err := s.controllers.Exists(ctx, cmd.ControllerID)
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "check controller"))
	}
	if !ok {
		return result.Err[*models.Container](dErrors.New(dErrors.CodeNotFound, "controller not found"))
	}
	saved, err := s.store.SaveWithEvents(ctx, c, c.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "save container"))
	}
	s.metrics.IncAggregateRegistered(models.AggregateType)
	s.log.Info("container registered", "container_id", saved.ID, "controller_id", saved.ControllerID)
	return result.Ok(saved)
}

// AdjustStock applies a signed stock delta under optimistic concurrency.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int, reason string) result.Result[*models.Container] {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "load container"))
	}
	if _, err := c.AdjustStock(delta, reason, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Container](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, c.EntityVersion(),
		stockPatch{stock: c.Stock, status: c.Status}, c.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "persist stock change"))
	}
	s.log.Info("container stock adjusted",
		"container_id", id, "delta", delta, "stock", updated.Stock, "reason", reason)
	return result.Ok(updated)
}

// ReserveForOrder takes quantity units of a product out of the first
// container that can serve it.
func (s *Service) ReserveForOrder(ctx context.Context, productID string, quantity int, orderID string) result.Result[*models.Container] {
	candidates, err := s.store.FindByProduct(ctx, productID)
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "find containers for product"))
	}
	for _, c := range candidates {
		if c.Stock < quantity {
			continue
		}
		if _, err := c.Reserve(quantity, orderID, requestcontext.Now(ctx)); err != nil {
			return result.Err[*models.Container](err)
		}
		updated, err := s.store.UpdateWithEvents(ctx, c.ID, c.EntityVersion(),
			stockPatch{stock: c.Stock, status: c.Status}, c.UncommittedEvents())
		if err != nil {
			return result.Err[*models.Container](s.translate(err, "persist reservation"))
		}
		s.log.Info("stock reserved",
			"container_id", c.ID, "order_id", orderID, "quantity", quantity)
		return result.Ok(updated)
	}
	return result.Err[*models.Container](dErrors.Newf(dErrors.CodeInvariantViolation,
		"no container can serve %d units of product %s", quantity, productID))
}

func (s *Service) ChangeStatus(ctx context.Context, id string, next models.Status, reason string) result.Result[*models.Container] {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "load container"))
	}
	if _, err := c.ChangeStatus(next, reason, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Container](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, c.EntityVersion(),
		stockPatch{stock: c.Stock, status: c.Status}, c.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "persist status change"))
	}
	s.metrics.IncStatusTransition(models.AggregateType, string(next))
	return result.Ok(updated)
}

func (s *Service) Update(ctx context.Context, id string, expectedVersion int, patch models.Patch) result.Result[*models.Container] {
	updated, err := s.store.Update(ctx, id, expectedVersion, patch)
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "update container"))
	}
	return result.Ok(updated)
}

func (s *Service) Retire(ctx context.Context, id string) result.Result[*models.Container] {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "load container"))
	}
	if _, err := c.Retire(requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Container](err)
	}
	if err := s.store.DeleteWithEvents(ctx, id, c.UncommittedEvents()); err != nil {
		return result.Err[*models.Container](s.translate(err, "retire container"))
	}
	s.log.Info("container retired", "container_id", id)
	return result.Ok(c)
}

// PlanReplenishment loads the fleet and proposes refills for depleted
// containers.
func (s *Service) PlanReplenishment(ctx context.Context) (planning.Plan, error) {
	containers, err := s.store.FindAll(ctx, nil)
	if err != nil {
		return planning.Plan{}, s.translate(err, "load containers")
	}
	return s.planner.Plan(containers), nil
}

func (s *Service) Get(ctx context.Context, id string) result.Result[*models.Container] {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Container](s.translate(err, "load container"))
	}
	return result.Ok(c)
}

func (s *Service) List(ctx context.Context, filters storage.Filters, page storage.PageRequest) result.Result[storage.Page[*models.Container]] {
	listed, err := s.store.FindAllPaginated(ctx, filters, page)
	if err != nil {
		return result.Err[storage.Page[*models.Container]](s.translate(err, "list containers"))
	}
	return result.Ok(listed)
}

func (s *Service) translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "container not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		s.metrics.IncVersionConflict(models.AggregateType)
		return dErrors.New(dErrors.CodeConflict, "container was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}

// stockPatch persists stock and derived status already validated on the
// aggregate.
type stockPatch struct {
	stock  int
	status models.Status
}

func (p stockPatch) Apply(c *models.Container) error {
	c.Stock = p.stock
	c.Status = p.status
	return nil
}

func (p stockPatch) FieldNames() []string { return []string{"stock", "status"} }
