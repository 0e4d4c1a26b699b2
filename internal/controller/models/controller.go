// Package models defines the Controller aggregate: the embedded computer that
// runs one vending machine and owns its devices and containers.
package models

import (
	"strings"
	"time"

	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
)

// AggregateType tags events and metrics emitted by this aggregate.
const AggregateType = "controller"

// Event types emitted by the Controller aggregate.
const (
	EventControllerRegistered     domain.EventType = "ControllerRegistered"
	EventControllerStatusChanged  domain.EventType = "ControllerStatusChanged"
	EventControllerDecommissioned domain.EventType = "ControllerDecommissioned"
)

// Status is the controller lifecycle state.
type Status string

const (
	StatusConfiguring Status = "configuring"
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusError       Status = "error"
	StatusMaintenance Status = "maintenance"
)

// transitions is the allowed status graph. error → offline is deliberately
// absent: recovery from error must pass through maintenance or online so the
// root cause gets recorded.
var transitions = map[Status][]Status{
	StatusConfiguring: {StatusOnline},
	StatusOnline:      {StatusOffline, StatusError, StatusMaintenance},
	StatusOffline:     {StatusOnline, StatusError, StatusMaintenance},
	StatusError:       {StatusOnline, StatusMaintenance},
	StatusMaintenance: {StatusOnline, StatusError},
}

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	_, known := transitions[s]
	return known
}

// CanTransitionTo reports whether the status graph allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Controller is the aggregate root for one physical machine. At least one of
// MACAddress, SerialNumber, and HardwareSignature must be present; each is
// unique across the fleet.
//
// Invariants:
//   - Status transitions follow the graph above; every transition emits a
//     ControllerStatusChanged event with previous and next status
//   - A new controller starts in configuring
type Controller struct {
	domain.Entity
	domain.Audit
	domain.SoftDelete
	domain.Recorder `json:"-"`

	Name              string              `json:"name"`
	MACAddress        string              `json:"mac_address,omitempty"`
	SerialNumber      string              `json:"serial_number,omitempty"`
	HardwareSignature string              `json:"hardware_signature,omitempty"`
	FirmwareVersion   string              `json:"firmware_version,omitempty"`
	Location          domain.Coordinates  `json:"location"`
	Status            Status              `json:"status"`
	LastHeartbeatAt   *time.Time          `json:"last_heartbeat_at,omitempty"`
}

// NewController validates identity and returns a controller in configuring
// with its registration event queued.
func NewController(name, macAddress, serialNumber, hardwareSignature string, location domain.Coordinates, now time.Time) (*Controller, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "controller name is required")
	}
	if macAddress == "" && serialNumber == "" && hardwareSignature == "" {
		return nil, dErrors.New(dErrors.CodeValidation,
			"controller needs a MAC address, serial number, or hardware signature")
	}
	c := &Controller{
		Name:              name,
		MACAddress:        strings.ToLower(macAddress),
		SerialNumber:      serialNumber,
		HardwareSignature: hardwareSignature,
		Location:          location,
		Status:            StatusConfiguring,
	}
	c.Record(domain.NewEvent(EventControllerRegistered, "", AggregateType, now, map[string]any{
		"name":        c.Name,
		"mac_address": c.MACAddress,
	}))
	return c, nil
}

// CanChangeStatus checks the transition without applying it.
func (c *Controller) CanChangeStatus(next Status) error {
	if !next.Valid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown controller status %q", next)
	}
	if !c.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"controller cannot move from %s to %s", c.Status, next)
	}
	return nil
}

// ChangeStatus applies a validated transition and returns the status-changed
// event (also queued on the aggregate).
func (c *Controller) ChangeStatus(next Status, reason string, now time.Time) (domain.Event, error) {
	if err := c.CanChangeStatus(next); err != nil {
		return domain.Event{}, err
	}
	previous := c.Status
	c.Status = next
	c.Touch(now)
	payload := map[string]any{
		"previous": string(previous),
		"next":     string(next),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	event := domain.NewEvent(EventControllerStatusChanged, c.ID, AggregateType, now, payload)
	c.Record(event)
	return event, nil
}

// RecordHeartbeat stamps liveness. A heartbeat from an offline or errored
// controller does not silently fix its status; the service decides whether a
// transition is in order.
func (c *Controller) RecordHeartbeat(now time.Time) {
	t := now
	c.LastHeartbeatAt = &t
	c.Touch(now)
}

// Decommission soft-deletes the controller and returns the event dependents
// react to.
func (c *Controller) Decommission(reason string, now time.Time) (domain.Event, error) {
	if c.IsDeleted() {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation, "controller is already decommissioned")
	}
	c.MarkDeleted(now)
	c.Touch(now)
	event := domain.NewEvent(EventControllerDecommissioned, c.ID, AggregateType, now, map[string]any{
		"reason": reason,
	})
	c.Record(event)
	return event, nil
}

// Clone returns a deep copy with an empty event queue; queued events belong
// to the in-flight aggregate, never to stored state.
func (c *Controller) Clone() *Controller {
	clone := *c
	clone.Recorder = domain.Recorder{}
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		clone.DeletedAt = &t
	}
	if c.LastHeartbeatAt != nil {
		t := *c.LastHeartbeatAt
		clone.LastHeartbeatAt = &t
	}
	return &clone
}

// Match evaluates exact-match filters.
func (c *Controller) Match(filters storage.Filters) (bool, error) {
	for field, want := range filters {
		switch field {
		case "name":
			if c.Name != want {
				return false, nil
			}
		case "mac_address":
			if c.MACAddress != want {
				return false, nil
			}
		case "serial_number":
			if c.SerialNumber != want {
				return false, nil
			}
		case "hardware_signature":
			if c.HardwareSignature != want {
				return false, nil
			}
		case "status":
			if string(c.Status) != toString(want) {
				return false, nil
			}
		default:
			return false, storage.ErrUnknownField(field)
		}
	}
	return true, nil
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case Status:
		return string(s)
	default:
		return ""
	}
}

// Patch is the typed partial update for controllers. Status is deliberately
// not patchable; transitions go through ChangeStatus.
type Patch struct {
	Name            *string
	FirmwareVersion *string
	Location        *domain.Coordinates
}

var _ storage.Patch[*Controller] = Patch{}

// PatchFromMap builds a Patch from a loose field map, rejecting unknown
// fields.
func PatchFromMap(fields map[string]any) (Patch, error) {
	var p Patch
	for field, value := range fields {
		switch field {
		case "name":
			name, ok := value.(string)
			if !ok {
				return Patch{}, dErrors.New(dErrors.CodeValidation, "name must be a string")
			}
			p.Name = &name
		case "firmware_version":
			version, ok := value.(string)
			if !ok {
				return Patch{}, dErrors.New(dErrors.CodeValidation, "firmware_version must be a string")
			}
			p.FirmwareVersion = &version
		case "location":
			location, ok := value.(domain.Coordinates)
			if !ok {
				return Patch{}, dErrors.New(dErrors.CodeValidation, "location must be coordinates")
			}
			p.Location = &location
		default:
			return Patch{}, storage.ErrUnknownField(field)
		}
	}
	return p, nil
}

func (p Patch) Apply(c *Controller) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return dErrors.New(dErrors.CodeValidation, "controller name cannot be empty")
		}
		c.Name = name
	}
	if p.FirmwareVersion != nil {
		c.FirmwareVersion = *p.FirmwareVersion
	}
	if p.Location != nil {
		c.Location = *p.Location
	}
	return nil
}

func (p Patch) FieldNames() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.FirmwareVersion != nil {
		fields = append(fields, "firmware_version")
	}
	if p.Location != nil {
		fields = append(fields, "location")
	}
	return fields
}
