// Package service implements device enrollment and assignment for the
// machines service.
package service

import (
	"context"
	"errors"
	"log/slog"

	"vendcore/internal/device"
	"vendcore/internal/device/models"
	"vendcore/internal/platform/metrics"
	"vendcore/internal/storage"
	dErrors "vendcore/pkg/domain-errors"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/requestcontext"
	"vendcore/pkg/result"
)

// ReferenceChecker answers whether a referenced aggregate currently exists.
// The controller and container repositories both satisfy it.
type ReferenceChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type Service struct {
	store       device.Repository
	controllers ReferenceChecker
	containers  ReferenceChecker
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

func New(store device.Repository, controllers, containers ReferenceChecker, opts ...Option) *Service {
	s := &Service{
		store:       store,
		controllers: controllers,
		containers:  containers,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", "device")
	return s
}

type EnrollCommand struct {
	Name         string
	Kind         models.Kind
	MACAddress   string
	ControllerID string
}

// Enroll registers a new device under an existing controller.
func (s *Service) Enroll(ctx context.Context, cmd EnrollCommand) result.Result[*models.Device] {
	d, err := models.NewDevice(cmd.Name, cmd.Kind, cmd.MACAddress, cmd.ControllerID, requestcontext.Now(ctx))
	if err != nil {
		return result.Err[*models.Device](err)
	}
	ok, err := s.controllers.Exists(ctx, cmd.ControllerID)
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "check controller"))
	}
	if !ok {
		return result.Err[*models.Device](dErrors.New(dErrors.CodeNotFound, "controller not found"))
	}
	if _, err := s.store.FindByMACAddress(ctx, d.MACAddress); err == nil {
		return result.Err[*models.Device](dErrors.New(dErrors.CodeConflict,
			"a device with this MAC address is already enrolled"))
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return result.Err[*models.Device](s.translate(err, "look up device by MAC"))
	}
	saved, err := s.store.SaveWithEvents(ctx, d, d.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "save device"))
	}
	s.metrics.IncAggregateRegistered(models.AggregateType)
	s.log.Info("device enrolled", "device_id", saved.ID, "controller_id", saved.ControllerID)
	return result.Ok(saved)
}

// AssignToContainer points a device at a container after checking the
// container exists.
func (s *Service) AssignToContainer(ctx context.Context, deviceID, containerID string) result.Result[*models.Device] {
	ok, err := s.containers.Exists(ctx, containerID)
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "check container"))
	}
	if !ok {
		return result.Err[*models.Device](dErrors.New(dErrors.CodeNotFound, "container not found"))
	}
	d, err := s.store.FindByID(ctx, deviceID)
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "load device"))
	}
	if _, err := d.AssignTo(containerID, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Device](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, deviceID, d.EntityVersion(),
		assignmentPatch{containerID: containerID}, d.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "persist assignment"))
	}
	s.log.Info("device assigned", "device_id", deviceID, "container_id", containerID)
	return result.Ok(updated)
}

// Unassign detaches a device from its container.
func (s *Service) Unassign(ctx context.Context, deviceID string) result.Result[*models.Device] {
	d, err := s.store.FindByID(ctx, deviceID)
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "load device"))
	}
	if _, err := d.Unassign(requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Device](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, deviceID, d.EntityVersion(),
		assignmentPatch{}, d.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "persist unassignment"))
	}
	return result.Ok(updated)
}

func (s *Service) ChangeStatus(ctx context.Context, deviceID string, next models.Status) result.Result[*models.Device] {
	d, err := s.store.FindByID(ctx, deviceID)
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "load device"))
	}
	if _, err := d.ChangeStatus(next, requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Device](err)
	}
	updated, err := s.store.UpdateWithEvents(ctx, deviceID, d.EntityVersion(),
		statusPatch{status: next}, d.UncommittedEvents())
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "persist status change"))
	}
	s.metrics.IncStatusTransition(models.AggregateType, string(next))
	return result.Ok(updated)
}

func (s *Service) Decommission(ctx context.Context, deviceID string) result.Result[*models.Device] {
	d, err := s.store.FindByID(ctx, deviceID)
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "load device"))
	}
	if _, err := d.Decommission(requestcontext.Now(ctx)); err != nil {
		return result.Err[*models.Device](err)
	}
	if err := s.store.DeleteWithEvents(ctx, deviceID, d.UncommittedEvents()); err != nil {
		return result.Err[*models.Device](s.translate(err, "decommission device"))
	}
	s.log.Info("device decommissioned", "device_id", deviceID)
	return result.Ok(d)
}

func (s *Service) Get(ctx context.Context, deviceID string) result.Result[*models.Device] {
	d, err := s.store.FindByID(ctx, deviceID)
	if err != nil {
		return result.Err[*models.Device](s.translate(err, "load device"))
	}
	return result.Ok(d)
}

func (s *Service) ListByController(ctx context.Context, controllerID string) result.Result[[]*models.Device] {
	devices, err := s.store.FindByController(ctx, controllerID)
	if err != nil {
		return result.Err[[]*models.Device](s.translate(err, "list devices"))
	}
	return result.Ok(devices)
}

func (s *Service) List(ctx context.Context, filters storage.Filters, page storage.PageRequest) result.Result[storage.Page[*models.Device]] {
	listed, err := s.store.FindAllPaginated(ctx, filters, page)
	if err != nil {
		return result.Err[storage.Page[*models.Device]](s.translate(err, "list devices"))
	}
	return result.Ok(listed)
}

func (s *Service) translate(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "device not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		s.metrics.IncVersionConflict(models.AggregateType)
		return dErrors.New(dErrors.CodeConflict, "device was modified concurrently")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "device identity is already enrolled")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}

type assignmentPatch struct {
	containerID string
}

func (p assignmentPatch) Apply(d *models.Device) error {
	d.ContainerID = p.containerID
	return nil
}

func (p assignmentPatch) FieldNames() []string { return []string{"container_id"} }

type statusPatch struct {
	status models.Status
}

func (p statusPatch) Apply(d *models.Device) error {
	d.Status = p.status
	return nil
}

func (p statusPatch) FieldNames() []string { return []string{"status"} }
