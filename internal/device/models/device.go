// Package models defines the Device aggregate: a peripheral (lock, sensor,
// dispenser) attached to a controller and optionally serving one container.
package models

import (
	"strings"
	"time"

	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
)

const AggregateType = "device"

const (
	EventDeviceEnrolled       domain.EventType = "DeviceEnrolled"
	EventDeviceAssigned       domain.EventType = "DeviceAssigned"
	EventDeviceUnassigned     domain.EventType = "DeviceUnassigned"
	EventDeviceStatusChanged  domain.EventType = "DeviceStatusChanged"
	EventDeviceDecommissioned domain.EventType = "DeviceDecommissioned"
)

// Kind classifies the peripheral.
type Kind string

const (
	KindLock      Kind = "lock"
	KindSensor    Kind = "sensor"
	KindDispenser Kind = "dispenser"
	KindDisplay   Kind = "display"
)

func (k Kind) Valid() bool {
	switch k {
	case KindLock, KindSensor, KindDispenser, KindDisplay:
		return true
	}
	return false
}

// Status is the device operational state. Devices have no lifecycle graph of
// their own; the controller drives them and any state can follow any other.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusFaulty   Status = "faulty"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusFaulty:
		return true
	}
	return false
}

// Device belongs to exactly one controller for life. ContainerID is a weak
// reference: it may point at a container that has since been retired, and
// readers resolve it lazily.
type Device struct {
	domain.Entity
	domain.Audit
	domain.SoftDelete
	domain.Recorder `json:"-"`

	Name         string `json:"name"`
	Kind         Kind   `json:"kind"`
	MACAddress   string `json:"mac_address"`
	ControllerID string `json:"controller_id"`
	ContainerID  string `json:"container_id,omitempty"`
	Status       Status `json:"status"`
}

func NewDevice(name string, kind Kind, macAddress, controllerID string, now time.Time) (*Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "device name is required")
	}
	if !kind.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown device kind %q", kind)
	}
	if macAddress == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "device MAC address is required")
	}
	if controllerID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "device needs a controller")
	}
	d := &Device{
		Name:         name,
		Kind:         kind,
		MACAddress:   strings.ToLower(macAddress),
		ControllerID: controllerID,
		Status:       StatusInactive,
	}
	d.Record(domain.NewEvent(EventDeviceEnrolled, "", AggregateType, now, map[string]any{
		"name":          d.Name,
		"kind":          string(d.Kind),
		"controller_id": d.ControllerID,
	}))
	return d, nil
}

// AssignTo points the device at a container.
func (d *Device) AssignTo(containerID string, now time.Time) (domain.Event, error) {
	if containerID == "" {
		return domain.Event{}, dErrors.New(dErrors.CodeValidation, "container id is required")
	}
	if d.ContainerID == containerID {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation,
			"device is already assigned to this container")
	}
	previous := d.ContainerID
	d.ContainerID = containerID
	d.Touch(now)
	event := domain.NewEvent(EventDeviceAssigned, d.ID, AggregateType, now, map[string]any{
		"container_id":          containerID,
		"previous_container_id": previous,
	})
	d.Record(event)
	return event, nil
}

// Unassign detaches the device from its container.
func (d *Device) Unassign(now time.Time) (domain.Event, error) {
	if d.ContainerID == "" {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation, "device is not assigned")
	}
	previous := d.ContainerID
	d.ContainerID = ""
	d.Touch(now)
	event := domain.NewEvent(EventDeviceUnassigned, d.ID, AggregateType, now, map[string]any{
		"previous_container_id": previous,
	})
	d.Record(event)
	return event, nil
}

func (d *Device) ChangeStatus(next Status, now time.Time) (domain.Event, error) {
	if !next.Valid() {
		return domain.Event{}, dErrors.Newf(dErrors.CodeValidation, "unknown device status %q", next)
	}
	if d.Status == next {
		return domain.Event{}, dErrors.Newf(dErrors.CodeInvariantViolation, "device is already %s", next)
	}
	previous := d.Status
	d.Status = next
	d.Touch(now)
	event := domain.NewEvent(EventDeviceStatusChanged, d.ID, AggregateType, now, map[string]any{
		"previous": string(previous),
		"next":     string(next),
	})
	d.Record(event)
	return event, nil
}

func (d *Device) Decommission(now time.Time) (domain.Event, error) {
	if d.IsDeleted() {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation, "device is already decommissioned")
	}
	d.MarkDeleted(now)
	d.Touch(now)
	event := domain.NewEvent(EventDeviceDecommissioned, d.ID, AggregateType, now, nil)
	d.Record(event)
	return event, nil
}

func (d *Device) Clone() *Device {
	clone := *d
	clone.Recorder = domain.Recorder{}
	if d.DeletedAt != nil {
		t := *d.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}

func (d *Device) Match(filters storage.Filters) (bool, error) {
	for field, want := range filters {
		var have string
		switch field {
		case "name":
			have = d.Name
		case "kind":
			have = string(d.Kind)
		case "mac_address":
			have = d.MACAddress
		case "controller_id":
			have = d.ControllerID
		case "container_id":
			have = d.ContainerID
		case "status":
			have = string(d.Status)
		default:
			return false, storage.ErrUnknownField(field)
		}
		if have != asString(want) {
			return false, nil
		}
	}
	return true, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case Kind:
		return string(s)
	case Status:
		return string(s)
	default:
		return ""
	}
}

// Patch is the typed partial update for devices. Assignment and status go
// through their own operations.
type Patch struct {
	Name *string
	Kind *Kind
}

var _ storage.Patch[*Device] = Patch{}

func (p Patch) Apply(d *Device) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return dErrors.New(dErrors.CodeValidation, "device name cannot be empty")
		}
		d.Name = name
	}
	if p.Kind != nil {
		if !p.Kind.Valid() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown device kind %q", *p.Kind)
		}
		d.Kind = *p.Kind
	}
	return nil
}

func (p Patch) FieldNames() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Kind != nil {
		fields = append(fields, "kind")
	}
	return fields
}
