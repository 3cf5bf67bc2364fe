// Package fault defines the fault bitmask surfaced to remote clients.
//
// Bits are owned by the subsystem that raises them: the deployment
// controller owns Actuation and Alert, the telemetry publisher owns the
// sensor bits.
package fault

import "strings"

// Set is a bitmask of latched fault conditions.
type Set uint8

const (
	// Actuation is set when the deployment output write failed.
	Actuation Set = 1 << iota
	// Alert is set when the buzzer pulse could not be started or stopped.
	Alert
	// AltitudeSensor is set when the last altitude sample failed.
	AltitudeSensor
	// AccelerationSensor is set when the last acceleration sample failed.
	AccelerationSensor
)

// Hardware groups the bits owned by the deployment controller.
const Hardware = Actuation | Alert

// Sensors groups the bits owned by the telemetry publisher.
const Sensors = AltitudeSensor | AccelerationSensor

// Has reports whether every bit of other is set in s.
func (s Set) Has(other Set) bool {
	return s&other == other
}

// String lists the raised faults, or "none".
func (s Set) String() string {
	if s == 0 {
		return "none"
	}

	names := make([]string, 0, 4)

	for _, f := range []struct {
		bit  Set
		name string
	}{
		{Actuation, "actuation"},
		{Alert, "alert"},
		{AltitudeSensor, "altitude_sensor"},
		{AccelerationSensor, "acceleration_sensor"},
	} {
		if s.Has(f.bit) {
			names = append(names, f.name)
		}
	}

	return strings.Join(names, ",")
}
