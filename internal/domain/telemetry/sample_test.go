package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAltitudeFromPressure checks the barometric formula at known points.
func TestAltitudeFromPressure(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 0, AltitudeFromPressure(DefaultSeaLevelHPa, DefaultSeaLevelHPa), 1e-9)
	// Roughly 111 m for a 13.25 hPa drop near sea level.
	require.InDelta(t, 110.9, AltitudeFromPressure(1000, DefaultSeaLevelHPa), 0.5)
	// Non-positive reference falls back to the default.
	require.InDelta(t, AltitudeFromPressure(900, DefaultSeaLevelHPa), AltitudeFromPressure(900, 0), 1e-9)
	// Higher pressure than reference yields a negative altitude.
	require.Less(t, AltitudeFromPressure(1020, DefaultSeaLevelHPa), 0.0)
}

// TestVectorMagnitude checks the Euclidean norm.
func TestVectorMagnitude(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 5.0, Vector{X: 3, Y: 4}.Magnitude(), 1e-9)
}

// TestEncodeFloat checks the little-endian float32 layout.
func TestEncodeFloat(t *testing.T) {
	t.Parallel()

	// 1.0f == 0x3f800000.
	require.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, EncodeFloat(1))

	v, err := DecodeFloat(EncodeFloat(-9.81))
	require.NoError(t, err)
	require.InDelta(t, -9.81, v, 1e-5)

	_, err = DecodeFloat([]byte{1, 2})
	require.Error(t, err)
}

// TestEncodeMillis checks the little-endian uint32 layout and wrap-around.
func TestEncodeMillis(t *testing.T) {
	t.Parallel()

	require.Equal(t, []byte{0xe8, 0x03, 0x00, 0x00}, EncodeMillis(time.Second))

	d, err := DecodeMillis(EncodeMillis(1500 * time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, d)

	wrapped, err := DecodeMillis(EncodeMillis((1<<32 + 5) * time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 5*time.Millisecond, wrapped)

	_, err = DecodeMillis(nil)
	require.Error(t, err)
}
