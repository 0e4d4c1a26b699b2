// Package domain holds the identifier types and base entity shapes shared by
// every bounded context. Typed IDs prevent cross-aggregate assignment at
// compile time; parsing enforces the trust-boundary invariant that IDs are
// valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "vendcore/pkg/domain-errors"
)

type (
	UserID          uuid.UUID
	ControllerID    uuid.UUID
	DeviceID        uuid.UUID
	ContainerID     uuid.UUID
	OrderID         uuid.UUID
	PaymentID       uuid.UUID
	PaymentMethodID uuid.UUID
	EventID         uuid.UUID
)

func (id UserID) String() string          { return uuid.UUID(id).String() }
func (id ControllerID) String() string    { return uuid.UUID(id).String() }
func (id DeviceID) String() string        { return uuid.UUID(id).String() }
func (id ContainerID) String() string     { return uuid.UUID(id).String() }
func (id OrderID) String() string         { return uuid.UUID(id).String() }
func (id PaymentID) String() string       { return uuid.UUID(id).String() }
func (id PaymentMethodID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string         { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool          { return uuid.UUID(id) == uuid.Nil }
func (id ControllerID) IsZero() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DeviceID) IsZero() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ContainerID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }
func (id OrderID) IsZero() bool         { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) IsZero() bool       { return uuid.UUID(id) == uuid.Nil }
func (id PaymentMethodID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsZero() bool         { return uuid.UUID(id) == uuid.Nil }

// parseUUID rejects empty strings, malformed UUIDs, and the nil UUID. All ID
// parsing funnels through here so every entry point applies the same rules.
func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw)
	return UserID(parsed), err
}

func ParseControllerID(raw string) (ControllerID, error) {
	parsed, err := parseUUID(raw)
	return ControllerID(parsed), err
}

func ParseDeviceID(raw string) (DeviceID, error) {
	parsed, err := parseUUID(raw)
	return DeviceID(parsed), err
}

func ParseContainerID(raw string) (ContainerID, error) {
	parsed, err := parseUUID(raw)
	return ContainerID(parsed), err
}

func ParseOrderID(raw string) (OrderID, error) {
	parsed, err := parseUUID(raw)
	return OrderID(parsed), err
}

func ParsePaymentID(raw string) (PaymentID, error) {
	parsed, err := parseUUID(raw)
	return PaymentID(parsed), err
}

func ParsePaymentMethodID(raw string) (PaymentMethodID, error) {
	parsed, err := parseUUID(raw)
	return PaymentMethodID(parsed), err
}

func ParseEventID(raw string) (EventID, error) {
	parsed, err := parseUUID(raw)
	return EventID(parsed), err
}

// NewEventID mints a fresh event identifier.
func NewEventID() EventID { return EventID(uuid.New()) }

// EventID crosses process boundaries inside the event envelope, so it
// serializes as the canonical UUID string rather than raw bytes.
func (id EventID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

func (id *EventID) UnmarshalText(data []byte) error {
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
