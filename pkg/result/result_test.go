package result

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOkCarriesValue(t *testing.T) {
	r := Ok(42)

	assert.True(t, r.OK())
	assert.Equal(t, 42, r.Value())
	assert.NoError(t, r.Err())

	value, err := r.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestErrCarriesFailure(t *testing.T) {
	cause := errors.New("boom")
	r := Err[string](cause)

	assert.False(t, r.OK())
	assert.Empty(t, r.Value())
	assert.ErrorIs(t, r.Err(), cause)
}

func TestFromLiftsPair(t *testing.T) {
	ok := From("hello", nil)
	assert.True(t, ok.OK())
	assert.Equal(t, "hello", ok.Value())

	cause := errors.New("boom")
	failed := From("ignored", cause)
	assert.False(t, failed.OK())
	assert.ErrorIs(t, failed.Err(), cause)
	assert.Empty(t, failed.Value())
}

func TestMapErrTranslatesOnlyFailures(t *testing.T) {
	translate := func(err error) error { return fmt.Errorf("translated: %w", err) }

	ok := Ok(1).MapErr(translate)
	assert.True(t, ok.OK())
	assert.Equal(t, 1, ok.Value())

	cause := errors.New("boom")
	failed := Err[int](cause).MapErr(translate)
	require.Error(t, failed.Err())
	assert.ErrorIs(t, failed.Err(), cause)
	assert.Contains(t, failed.Err().Error(), "translated")
}
