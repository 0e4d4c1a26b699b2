package user

import (
	"context"
	"errors"

	"vendcore/pkg/platform/sentinel"
)

// Directory answers account questions for other contexts without exposing
// the full repository. The order service consults it before accepting a
// checkout.
type Directory struct {
	store Repository
}

func NewDirectory(store Repository) *Directory {
	return &Directory{store: store}
}

// CanPurchase reports whether the account exists and is active. Unknown
// accounts are a plain "no", not an error.
func (d *Directory) CanPurchase(ctx context.Context, userID string) (bool, error) {
	u, err := d.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.IsActive, nil
}
