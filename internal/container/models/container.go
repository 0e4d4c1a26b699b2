// Package models defines the Container aggregate: one stocked compartment of
// a vending machine. Containers are owned by the machines service; commerce
// reads them through the shared projection.
package models

import (
	"strings"
	"time"

	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
)

const AggregateType = "container"

const (
	EventContainerRegistered    domain.EventType = "ContainerRegistered"
	EventContainerStockChanged  domain.EventType = "ContainerStockChanged"
	EventContainerStatusChanged domain.EventType = "ContainerStatusChanged"
	EventContainerRetired       domain.EventType = "ContainerRetired"
)

type Status string

const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusMaintenance Status = "maintenance"
	StatusError       Status = "error"
	StatusFull        Status = "full"
	StatusEmpty       Status = "empty"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusMaintenance, StatusError, StatusFull, StatusEmpty:
		return true
	}
	return false
}

// Container holds stock of exactly one product. ControllerID is mandatory
// and never changes after registration.
//
// Invariants:
//   - 0 <= Stock <= Capacity
//   - Stock hitting the bounds moves status to empty or full; leaving the
//     bounds moves it back to online
type Container struct {
	domain.Entity
	domain.Audit
	domain.SoftDelete
	domain.Recorder `json:"-"`

	Name         string `json:"name"`
	ControllerID string `json:"controller_id"`
	ProductID    string `json:"product_id,omitempty"`
	Capacity     int    `json:"capacity"`
	Stock        int    `json:"stock"`
	Status       Status `json:"status"`
}

func NewContainer(name, controllerID, productID string, capacity int, now time.Time) (*Container, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "container name is required")
	}
	if controllerID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "container needs a controller")
	}
	if capacity < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "container capacity cannot be negative")
	}
	c := &Container{
		Name:         name,
		ControllerID: controllerID,
		ProductID:    productID,
		Capacity:     capacity,
		Status:       StatusEmpty,
	}
	c.Record(domain.NewEvent(EventContainerRegistered, "", AggregateType, now, map[string]any{
		"name":          c.Name,
		"controller_id": c.ControllerID,
		"capacity":      c.Capacity,
	}))
	return c, nil
}

// AdjustStock applies a signed stock delta and keeps status consistent with
// the fill level. The delta is rejected when it would leave the bounds.
func (c *Container) AdjustStock(delta int, reason string, now time.Time) (domain.Event, error) {
	next := c.Stock + delta
	if next < 0 {
		return domain.Event{}, dErrors.Newf(dErrors.CodeInvariantViolation,
			"container holds %d, cannot remove %d", c.Stock, -delta)
	}
	if next > c.Capacity {
		return domain.Event{}, dErrors.Newf(dErrors.CodeInvariantViolation,
			"container capacity is %d, cannot hold %d", c.Capacity, next)
	}
	previous := c.Stock
	c.Stock = next
	c.reconcileStatus()
	c.Touch(now)
	event := domain.NewEvent(EventContainerStockChanged, c.ID, AggregateType, now, map[string]any{
		"previous": previous,
		"next":     next,
		"delta":    delta,
		"reason":   reason,
	})
	c.Record(event)
	return event, nil
}

// Reserve removes quantity units for an order.
func (c *Container) Reserve(quantity int, orderID string, now time.Time) (domain.Event, error) {
	if quantity <= 0 {
		return domain.Event{}, dErrors.New(dErrors.CodeValidation, "reservation quantity must be positive")
	}
	return c.AdjustStock(-quantity, "reserved for order "+orderID, now)
}

// reconcileStatus moves between the stock-derived statuses. Error, offline,
// and maintenance are sticky; a stock change never clears them.
func (c *Container) reconcileStatus() {
	switch c.Status {
	case StatusError, StatusOffline, StatusMaintenance:
		return
	}
	switch {
	case c.Capacity > 0 && c.Stock == c.Capacity:
		c.Status = StatusFull
	case c.Stock == 0:
		c.Status = StatusEmpty
	default:
		c.Status = StatusOnline
	}
}

func (c *Container) ChangeStatus(next Status, reason string, now time.Time) (domain.Event, error) {
	if !next.Valid() {
		return domain.Event{}, dErrors.Newf(dErrors.CodeValidation, "unknown container status %q", next)
	}
	if c.Status == next {
		return domain.Event{}, dErrors.Newf(dErrors.CodeInvariantViolation, "container is already %s", next)
	}
	previous := c.Status
	c.Status = next
	c.Touch(now)
	event := domain.NewEvent(EventContainerStatusChanged, c.ID, AggregateType, now, map[string]any{
		"previous": string(previous),
		"next":     string(next),
		"reason":   reason,
	})
	c.Record(event)
	return event, nil
}

func (c *Container) Retire(now time.Time) (domain.Event, error) {
	if c.IsDeleted() {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation, "container is already retired")
	}
	c.MarkDeleted(now)
	c.Touch(now)
	event := domain.NewEvent(EventContainerRetired, c.ID, AggregateType, now, nil)
	c.Record(event)
	return event, nil
}

func (c *Container) Clone() *Container {
	clone := *c
	clone.Recorder = domain.Recorder{}
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}

func (c *Container) Match(filters storage.Filters) (bool, error) {
	for field, want := range filters {
		switch field {
		case "name":
			if c.Name != want {
				return false, nil
			}
		case "controller_id":
			if c.ControllerID != want {
				return false, nil
			}
		case "product_id":
			if c.ProductID != want {
				return false, nil
			}
		case "status":
			s, _ := want.(string)
			if v, ok := want.(Status); ok {
				s = string(v)
			}
			if string(c.Status) != s {
				return false, nil
			}
		default:
			return false, storage.ErrUnknownField(field)
		}
	}
	return true, nil
}

// Patch is the typed partial update for containers. ControllerID is
// immutable; stock and status have their own operations.
type Patch struct {
	Name      *string
	ProductID *string
	Capacity  *int
}

var _ storage.Patch[*Container] = Patch{}

func (p Patch) Apply(c *Container) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return dErrors.New(dErrors.CodeValidation, "container name cannot be empty")
		}
		c.Name = name
	}
	if p.ProductID != nil {
		c.ProductID = *p.ProductID
	}
	if p.Capacity != nil {
		if *p.Capacity < 0 {
			return dErrors.New(dErrors.CodeValidation, "container capacity cannot be negative")
		}
		if *p.Capacity < c.Stock {
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"capacity %d is below current stock %d", *p.Capacity, c.Stock)
		}
		c.Capacity = *p.Capacity
	}
	return nil
}

func (p Patch) FieldNames() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.ProductID != nil {
		fields = append(fields, "product_id")
	}
	if p.Capacity != nil {
		fields = append(fields, "capacity")
	}
	return fields
}
