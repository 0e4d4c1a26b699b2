package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vendcore/pkg/domain-errors"
)

func TestParseAcceptsCanonicalUUID(t *testing.T) {
	const raw = "3e0170e7-22a2-47a4-ba85-a0e4c2f6af8d"

	id, err := ParseControllerID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, id.String())
	assert.False(t, id.IsZero())
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"malformed": "not-a-uuid",
		"truncated": "3e0170e7-22a2-47a4-ba85",
		"nil uuid":  "00000000-0000-0000-0000-000000000000",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOrderID(raw)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestTypedIDsAreDistinct(t *testing.T) {
	// Compile-time property: a UserID cannot be assigned to a DeviceID. At
	// runtime we can only check the zero behavior is shared.
	var u UserID
	var d DeviceID
	assert.True(t, u.IsZero())
	assert.True(t, d.IsZero())
}

func TestNewEventIDIsUniqueAndNonZero(t *testing.T) {
	a := NewEventID()
	b := NewEventID()
	assert.False(t, a.IsZero())
	assert.NotEqual(t, a, b)
}

func TestEventIDJSONRoundTrip(t *testing.T) {
	id := NewEventID()

	encoded, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+id.String()+`"`, string(encoded))

	var decoded EventID
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, id, decoded)

	assert.Error(t, json.Unmarshal([]byte(`"not-a-uuid"`), &decoded))
}
