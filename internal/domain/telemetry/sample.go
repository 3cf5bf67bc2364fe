package telemetry

import (
	"math"
	"time"

	"github.com/oshokin/safety-parachute/internal/domain/fault"
)

// DefaultSeaLevelHPa is the reference pressure used for altitude computation.
const DefaultSeaLevelHPa = 1013.25

// Vector is a three-axis acceleration in m/s².
type Vector struct {
	X float64
	Y float64
	Z float64
}

// Magnitude returns the Euclidean norm of the vector.
func (v Vector) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sample is one telemetry snapshot.
type Sample struct {
	// Timestamp is the wall-clock time the sample was taken.
	Timestamp time.Time
	// Altitude is the barometric altitude in meters.
	Altitude float64
	// Acceleration is the last sampled acceleration vector.
	Acceleration Vector
	// Elapsed is the monotonic time since boot.
	Elapsed time.Duration
	// Faults holds the sensor fault bits raised while taking this sample.
	Faults fault.Set
}

// Clone returns a copy of the sample.
func (s *Sample) Clone() *Sample {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}

// AltitudeFromPressure converts a static pressure reading to altitude in
// meters using the international barometric formula against seaLevelHPa.
func AltitudeFromPressure(pressureHPa, seaLevelHPa float64) float64 {
	if seaLevelHPa <= 0 {
		seaLevelHPa = DefaultSeaLevelHPa
	}

	return 44330.0 * (1.0 - math.Pow(pressureHPa/seaLevelHPa, 0.1903))
}
