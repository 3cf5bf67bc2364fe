package fault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSetHas checks bitmask helpers.
func TestSetHas(t *testing.T) {
	t.Parallel()

	s := Actuation | AltitudeSensor
	require.True(t, s.Has(Actuation))
	require.True(t, s.Has(AltitudeSensor))
	require.False(t, s.Has(Alert))
	require.False(t, s.Has(Actuation|Alert))
}

// TestSetString checks the human-readable listing.
func TestSetString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "none", Set(0).String())
	require.Equal(t, "actuation,acceleration_sensor", (Actuation | AccelerationSensor).String())
	require.Equal(t, Set(0x0f), Hardware|Sensors)
}
