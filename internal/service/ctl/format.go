package ctl

import (
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/fault"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
)

// FormatState renders a deployment state as one readable line.
func FormatState(state *deployment.State) string {
	if state == nil {
		return "<nil state>"
	}

	origin := state.Origin
	if origin == "" {
		origin = "boot"
	}

	timestamp := "<unknown>"
	if !state.Timestamp.IsZero() {
		timestamp = state.Timestamp.Format(time.RFC3339)
	}

	pulse := "silent"
	if state.PulseActive {
		pulse = "alert sounding"
	}

	return fmt.Sprintf("%s (%c) by %s at %s, output %s, %s, faults: %s",
		state.Phase, state.Phase.StatusByte(), origin, timestamp, state.Output, pulse, state.Faults)
}

// FormatSample renders a telemetry sample as one readable line.
// Signals whose sensor is faulted are shown as "n/a".
func FormatSample(sample *telemetry.Sample) string {
	if sample == nil {
		return "<no sample>"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "t+%s", sample.Elapsed.Truncate(time.Millisecond))

	if sample.Faults.Has(fault.AltitudeSensor) {
		b.WriteString(" altitude n/a")
	} else {
		fmt.Fprintf(&b, " altitude %.2f m", sample.Altitude)
	}

	if sample.Faults.Has(fault.AccelerationSensor) {
		b.WriteString(" accel n/a")
	} else {
		a := sample.Acceleration
		fmt.Fprintf(&b, " accel [%.2f %.2f %.2f] m/s² |a| %.2f", a.X, a.Y, a.Z, a.Magnitude())
	}

	if sample.Faults != 0 {
		fmt.Fprintf(&b, " faults: %s", sample.Faults)
	}

	return b.String()
}
