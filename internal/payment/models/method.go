package models

import (
	"vendcore/internal/storage"
	"vendcore/pkg/domain"
	dErrors "vendcore/pkg/domain-errors"
)

// MethodKind classifies a stored payment method.
type MethodKind string

const (
	MethodCard   MethodKind = "card"
	MethodWallet MethodKind = "wallet"
	MethodSEPA   MethodKind = "sepa"
)

func (k MethodKind) Valid() bool {
	switch k {
	case MethodCard, MethodWallet, MethodSEPA:
		return true
	}
	return false
}

// PaymentMethod stores a gateway token, never raw card data. Last4 is the
// only displayable slice of the instrument.
type PaymentMethod struct {
	domain.Entity
	domain.Audit
	domain.SoftDelete

	UserID       string     `json:"user_id"`
	Kind         MethodKind `json:"kind"`
	Last4        string     `json:"last4,omitempty"`
	GatewayToken string     `json:"gateway_token"`
	IsDefault    bool       `json:"is_default"`
}

func NewPaymentMethod(userID string, kind MethodKind, last4, gatewayToken string) (*PaymentMethod, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "payment method needs a user")
	}
	if !kind.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown payment method kind %q", kind)
	}
	if gatewayToken == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "gateway token is required")
	}
	if kind == MethodCard && len(last4) != 4 {
		return nil, dErrors.New(dErrors.CodeValidation, "card methods need the last four digits")
	}
	return &PaymentMethod{
		UserID:       userID,
		Kind:         kind,
		Last4:        last4,
		GatewayToken: gatewayToken,
	}, nil
}

func (m *PaymentMethod) Clone() *PaymentMethod {
	clone := *m
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		clone.DeletedAt = &t
	}
	return &clone
}

func (m *PaymentMethod) Match(filters storage.Filters) (bool, error) {
	for field, want := range filters {
		switch field {
		case "user_id":
			if m.UserID != want {
				return false, nil
			}
		case "kind":
			s, _ := want.(string)
			if k, ok := want.(MethodKind); ok {
				s = string(k)
			}
			if string(m.Kind) != s {
				return false, nil
			}
		case "is_default":
			if m.IsDefault != want {
				return false, nil
			}
		default:
			return false, storage.ErrUnknownField(field)
		}
	}
	return true, nil
}

// MethodPatch updates the displayable parts of a stored method.
type MethodPatch struct {
	IsDefault *bool
}

var _ storage.Patch[*PaymentMethod] = MethodPatch{}

func (p MethodPatch) Apply(m *PaymentMethod) error {
	if p.IsDefault != nil {
		m.IsDefault = *p.IsDefault
	}
	return nil
}

func (p MethodPatch) FieldNames() []string {
	if p.IsDefault != nil {
		return []string{"is_default"}
	}
	return nil
}
