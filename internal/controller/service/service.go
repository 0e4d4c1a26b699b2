// Package service implements the controller fleet operations exposed by the
// machines service.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vendcore/internal/controller"
	"vendcore/internal/controller/health"
	"vendcore/internal/controller/models"
	"vendcore/internal/platform/metrics"
	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/requestcontext"
	"vendcore/pkg/result"
)

type Service struct {
	store   controller.Repository
	health  *health.Checker
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

func WithHealthChecker(c *health.Checker) Option {
	return func(s *Service) { s.health = c }
}

func New(store controller.Repository, opts ...Option) *Service {
	s := &Service{store: store, health: health.NewChecker(), log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", "controller")
	return s
}

// RegisterCommand carries the fields needed to enroll a controller.
type RegisterCommand struct {
	Name              string
	MACAddress        string
	SerialNumber      string
	HardwareSignature string
	Location          domain.Coordinates
}

// Register enrolls a new controller in configuring state. A controller whose
// MAC address, serial number, or hardware signature is already registered is
// a conflict.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) result.Result[*models.Controller] {
	c, err := models.NewController(cmd.Name, cmd.MACAddress, cmd.SerialNumber, cmd.HardwareSignature,
		cmd.Location, requestcontext.Now(ctx))
	if err != nil {
		return result.Err[*models.Controller](err)
	}
	if c.MACAddress != "" {
		if _, err := s.store.FindByMACAddress(ctx, c.MACAddress); err == nil {
			return result.Err[*models.Controller](dErrors.New(dErrors.CodeConflict,
				"a controller with this MAC address is already registered"))
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return result.Err[*models.Controller](s.translate(err, "look up controller by MAC"))
		}
	}
	saved, err := s.store.SaveWithEvents(ctx, c, c.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Controller](s.translate(err, "save controller"))
	}
	c.MarkEventsCommitted()
	s.metrics.IncAggregateRegistered(models.AggregateType)
	s.log.Info("controller registered", "controller_id", saved.ID, "name", saved.Name)
	return result.Ok(saved)
}

// ChangeStatus applies one lifecycle transition and publishes the
// status-changed event atomically with the write.
func (s *Service) ChangeStatus(ctx context.Context, id string, next models.Status, reason string) result.Result[*models.Controller] {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Controller](s.translate(err, "load controller"))
	}
	if _, err := c.ChangeStatus(next, reason, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Controller](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, c.EntityVersion(), statusPatch{c.Status}, c.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Controller](s.translate(err, "persist status change"))
	}
	s.metrics.IncStatusTransition(models.AggregateType, string(next))
	s.log.Info("controller status changed",
		"controller_id", id, "next", next, "reason", reason)
	return result.Ok(updated)
}

// ReportHeartbeat stamps liveness and brings an offline controller back
// online.
func (s *Service) ReportHeartbeat(ctx context.Context, id string) result.Result[*models.Controller] {
	now := requestcontext.Now(ctx)
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Controller](s.translate(err, "load controller"))
	}
	c.RecordHeartbeat(now)
	if c.Status == models.StatusOffline {
		if _, err := c.ChangeStatus(models.StatusOnline, "heartbeat received", now); err != nil {
			return result.Err[*models.Controller](err)
		}
		s.metrics.IncStatusTransition(models.AggregateType, string(models.StatusOnline))
	}
	updated, err := s.store.UpdateWithEvents(ctx, id, c.EntityVersion(),
		heartbeatPatch{at: now, status: c.Status}, c.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Controller](s.translate(err, "persist heartbeat"))
	}
	return result.Ok(updated)
}

// Update applies a typed partial update under optimistic concurrency.
func (s *Service) Update(ctx context.Context, id string, expectedVersion int, patch models.Patch) result.Result[*models.Controller] {
	updated, err := s.store.Update(ctx, id, expectedVersion, patch)
	if err != nil {
		return result.Err[*models.Controller](s.translate(err, "update controller"))
	}
	return result.Ok(updated)
}

// Decommission retires a controller. The record is kept for audit; dependent
// devices and containers react to the published event.
func (s *Service) Decommission(ctx context.Context, id, reason string) result.Result[*models.Controller] {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Controller](s.translate(err, "load controller"))
	}
	if _, err := c.Decommission(reason, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Controller](err)
	}
	if err := s.store.DeleteWithEvents(ctx, id, c.UncommittedEvents()); err != nil {
		return result.Err[*models.Controller](s.translate(err, "decommission controller"))
	}
	s.log.Info("controller decommissioned", "controller_id", id, "reason", reason)
	return result.Ok(c)
}

// SweepHealth loads the online fleet and grades it, returning the
// controllers that need attention.
func (s *Service) SweepHealth(ctx context.Context) ([]health.Report, error) {
	online, err := s.store.FindByStatus(ctx, models.StatusOnline)
	if err != nil {
		return nil, s.translate(err, "load online controllers")
	}
	return s.health.Sweep(online, requestcontext.Now(ctx)), nil
}

func (s *Service) Get(ctx context.Context, id string) result.Result[*models.Controller] {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return result.Err[*models.Controller](s.translate(err, "load controller"))
	}
	return result.Ok(c)
}

func (s *Service) List(ctx context.Context, filters storage.Filters, page storage.PageRequest) result.Result[storage.Page[*models.Controller]] {
	listed, err := s.store.FindAllPaginated(ctx, filters, page)
	if err != nil {
		return result.Err[storage.Page[*models.Controller]](s.translate(err, "list controllers"))
	}
	return result.Ok(listed)
}

// translate maps adapter sentinels onto coded domain errors at the service
// boundary.
func (s *Service) translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "controller not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		s.metrics.IncVersionConflict(models.AggregateType)
		return dErrors.New(dErrors.CodeConflict, "controller was modified concurrently")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "controller identity is already registered")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}

// statusPatch persists a transition already validated on the aggregate.
type statusPatch struct {
	status models.Status
}

func (p statusPatch) Apply(c *models.Controller) error {
	c.Status = p.status
	return nil
}

func (p statusPatch) FieldNames() []string { return []string{"status"} }

type heartbeatPatch struct {
	at     time.Time
	status models.Status
}

func (p heartbeatPatch) Apply(c *models.Controller) error {
	t := p.at
	c.LastHeartbeatAt = &t
	c.Status = p.status
	return nil
}

func (p heartbeatPatch) FieldNames() []string { return []string{"last_heartbeat_at", "status"} }
