package storage

import (
	"sort"

	dErrors "vendcore/pkg/domain-errors"
)

// Filters is an exact-match criteria set keyed by model field name. Models
// validate keys in Match, so a typo surfaces as a validation error instead of
// an empty result set.
type Filters map[string]any

// Clone copies the filter map.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys lists filter fields in stable order, for error messages and SQL
// generation.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ErrUnknownField builds the validation error models return from Match when a
// filter names a field the model does not expose.
func ErrUnknownField(field string) error {
	return dErrors.Newf(dErrors.CodeValidation, "unknown field %q", field)
}
