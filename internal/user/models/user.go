// Package models defines the User aggregate for the commerce service.
package models

import (
	"net/mail"
	"strings"
	"time"

	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
)

const AggregateType = "user"

const (
	EventUserRegistered     domain.EventType = "UserRegistered"
	EventUserProfileUpdated domain.EventType = "UserProfileUpdated"
	EventUserDeactivated    domain.EventType = "UserDeactivated"
	EventUserReactivated    domain.EventType = "UserReactivated"
	EventUserDeleted        domain.EventType = "UserDeleted"
)

// Role determines what a user may do across the platform.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleUser     Role = "USER"
	RoleProvider Role = "PROVIDER"
	RoleCustomer Role = "CUSTOMER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleProvider, RoleCustomer:
		return true
	}
	return false
}

// User is the commerce identity. Email is unique (case-insensitive);
// IsActive gates authentication.
type User struct {
	domain.Entity
	domain.Audit
	domain.SoftDelete
	domain.Recorder `json:"-"`

	Email        string                 `json:"email"`
	FullName     string                 `json:"full_name"`
	Role         Role                   `json:"role"`
	PasswordHash string                 `json:"password_hash,omitempty"`
	IsActive     bool                   `json:"is_active"`
	Address      domain.Address         `json:"address"`
	Preferences  domain.UserPreferences `json:"preferences"`
}

func NewUser(email, fullName string, role Role, passwordHash string, now time.Time) (*User, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "email address is invalid")
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "full name is required")
	}
	if !role.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown role %q", role)
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "password hash is required")
	}
	u := &User{
		Email:        email,
		FullName:     fullName,
		Role:         role,
		PasswordHash: passwordHash,
		IsActive:     true,
		Preferences: domain.UserPreferences{
			Language:           "en",
			Currency:           "EUR",
			EmailNotifications: true,
		},
	}
	u.Record(domain.NewEvent(EventUserRegistered, "", AggregateType, now, map[string]any{
		"email": u.Email,
		"role":  string(u.Role),
	}))
	return u, nil
}

// NormalizeEmail lowercases and trims so lookups and the unique index agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) Deactivate(reason string, now time.Time) (domain.Event, error) {
	if !u.IsActive {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation, "user is already inactive")
	}
	u.IsActive = false
	u.Touch(now)
	event := domain.NewEvent(EventUserDeactivated, u.ID, AggregateType, now, map[string]any{
		"reason": reason,
	})
	u.Record(event)
	return event, nil
}

func (u *User) Reactivate(now time.Time) (domain.Event, error) {
	if u.IsActive {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation, "user is already active")
	}
	u.IsActive = true
	u.Touch(now)
	event := domain.NewEvent(EventUserReactivated, u.ID, AggregateType, now, nil)
	u.Record(event)
	return event, nil
}

// Erase soft-deletes the account and blanks credentials so a restore cannot
// resurrect a login.
func (u *User) Erase(now time.Time) (domain.Event, error) {
	if u.IsDeleted() {
		return domain.Event{}, dErrors.New(dErrors.CodeInvariantViolation, "user is already deleted")
	}
	u.IsActive = false
	u.PasswordHash = ""
	u.MarkDeleted(now)
	u.Touch(now)
	event := domain.NewEvent(EventUserDeleted, u.ID, AggregateType, now, nil)
	u.Record(event)
	return event, nil
}

func (u *User) Clone() *User {
	clone := *u
	clone.Recorder = domain.Recorder{}
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}

func (u *User) Match(filters storage.Filters) (bool, error) {
	for field, want := range filters {
		switch field {
		case "email":
			if u.Email != want {
				return false, nil
			}
		case "role":
			s, _ := want.(string)
			if r, ok := want.(Role); ok {
				s = string(r)
			}
			if string(u.Role) != s {
				return false, nil
			}
		case "is_active":
			if u.IsActive != want {
				return false, nil
			}
		default:
			return false, storage.ErrUnknownField(field)
		}
	}
	return true, nil
}

// Patch is the typed profile update. Email, role, and credentials change
// through dedicated operations.
type Patch struct {
	FullName    *string
	Address     *domain.Address
	Preferences *domain.UserPreferences
}

var _ storage.Patch[*User] = Patch{}

func (p Patch) Apply(u *User) error {
	if p.FullName != nil {
		name := strings.TrimSpace(*p.FullName)
		if name == "" {
			return dErrors.New(dErrors.CodeValidation, "full name cannot be empty")
		}
		u.FullName = name
	}
	if p.Address != nil {
		u.Address = *p.Address
	}
	if p.Preferences != nil {
		u.Preferences = *p.Preferences
	}
	return nil
}

func (p Patch) FieldNames() []string {
	var fields []string
	if p.FullName != nil {
		fields = append(fields, "full_name")
	}
	if p.Address != nil {
		fields = append(fields, "address")
	}
	if p.Preferences != nil {
		fields = append(fields, "preferences")
	}
	return fields
}
