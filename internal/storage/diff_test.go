package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendcore/pkg/domain"
)

type diffFixture struct {
	domain.Entity
	domain.Audit

	Name     string     `json:"name"`
	Stock    int        `json:"stock"`
	Secret   string     `json:"-"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func TestDiffReportsChangedFieldsByJSONName(t *testing.T) {
	before := &diffFixture{Name: "snacks", Stock: 4}
	after := &diffFixture{Name: "snacks", Stock: 9}

	changes := Diff(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "stock", changes[0].Field)
	assert.Equal(t, 4, changes[0].Old)
	assert.Equal(t, 9, changes[0].New)
}

func TestDiffSkipsBookkeepingAndHiddenFields(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	before := &diffFixture{Name: "snacks", Secret: "a"}
	after := before
	updated := *before
	updated.Secret = "b"
	updated.Version = 7
	updated.UpdatedBy = "operator"
	updated.Touch(now)
	after = &updated

	assert.Empty(t, Diff(before, after))
}

func TestDiffSeesEmbeddedEntityFields(t *testing.T) {
	before := &diffFixture{}
	before.ID = "shelf-1"
	after := before.cloneWith(func(f *diffFixture) { f.ID = "shelf-2" })

	changes := Diff(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "id", changes[0].Field)
}

func TestDiffComparesTimeByInstant(t *testing.T) {
	utc := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	elsewhere := utc.In(time.FixedZone("CET", 3600))

	before := &diffFixture{Entity: domain.Entity{CreatedAt: utc}}
	after := &diffFixture{Entity: domain.Entity{CreatedAt: elsewhere}}

	assert.Empty(t, Diff(before, after))
}

func TestDiffNilPointerIsEmpty(t *testing.T) {
	var before *diffFixture
	assert.Empty(t, Diff(before, &diffFixture{Name: "x"}))
}

func (f *diffFixture) cloneWith(mutate func(*diffFixture)) *diffFixture {
	clone := *f
	mutate(&clone)
	return &clone
}
