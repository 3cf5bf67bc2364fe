package deployment

import (
	"time"

	"github.com/oshokin/safety-parachute/internal/domain/fault"
)

// Phase is the operational state of the deployment actuator.
type Phase uint8

const (
	// Disarmed is the boot default: output low, no alert.
	Disarmed Phase = iota
	// ArmedDeployed means the deployment output has been driven high.
	ArmedDeployed
)

// String returns a lowercase name suitable for logs and metric labels.
func (p Phase) String() string {
	if p == ArmedDeployed {
		return "armed_deployed"
	}

	return "disarmed"
}

// StatusByte returns the single-byte encoding served by the status characteristic.
func (p Phase) StatusByte() byte {
	if p == ArmedDeployed {
		return ArmByte
	}

	return DisarmByte
}

// Level is the commanded level of a hardware output.
type Level bool

const (
	// Low represents an inactive output.
	Low Level = false
	// High represents an active output.
	High Level = true
)

// String returns "high" or "low".
func (l Level) String() string {
	if l {
		return "high"
	}

	return "low"
}

// State represents the actuator status at a specific point in time.
type State struct {
	// Timestamp is when the state last transitioned.
	Timestamp time.Time
	// Origin names the link that issued the last transition (for example "ble" or "ground-link").
	Origin string
	// LastCommand is the last command that changed the state.
	LastCommand Command
	// Phase is the active actuator phase.
	Phase Phase
	// Output is the last level successfully written to the deployment output.
	Output Level
	// PulseActive indicates whether the alert pulse is currently sounding.
	PulseActive bool
	// Faults holds the latched actuation and alert faults.
	Faults fault.Set
}

// Clone returns a copy of the state to avoid leaking internal references.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}
