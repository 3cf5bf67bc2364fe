package hardware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
)

var (
	// ErrActuation marks a failed write to the deployment output.
	ErrActuation = errors.New("deployment output write failed")
	// ErrAlert marks a failed buzzer operation.
	ErrAlert = errors.New("alert buzzer operation failed")
	// ErrSensor marks a failed sensor read.
	ErrSensor = errors.New("sensor read failed")
)

// ActuatorDriver drives the deployment output and the alert buzzer.
// Every method must return promptly; Pulse keeps sounding in the background.
type ActuatorDriver interface {
	// Set drives the deployment output to level.
	Set(level deployment.Level) error
	// Pulse sounds the buzzer at toneHz for duration, restarting any pulse in progress.
	Pulse(toneHz uint32, duration time.Duration) error
	// Silence stops the buzzer.
	Silence() error
}

// TelemetrySource samples the flight sensors.
type TelemetrySource interface {
	Altitude(ctx context.Context) (float64, error)
	Acceleration(ctx context.Context) (telemetry.Vector, error)
	Elapsed() time.Duration
}

// WakeCause classifies why the controller resumed.
type WakeCause uint8

const (
	// WakeOther covers cold boots and unknown causes.
	WakeOther WakeCause = iota
	// WakeExternalSignal means an external line woke the controller.
	WakeExternalSignal
	// WakeTimer means a timer alarm woke the controller.
	WakeTimer
)

// WakeReason is the diagnostic classification of the last wake-up.
type WakeReason struct {
	// Cause is the wake-up class.
	Cause WakeCause
	// Code is the platform-specific code (an IRQ number, for example).
	Code int
}

// String renders the wake reason for logs.
func (w WakeReason) String() string {
	switch w.Cause {
	case WakeExternalSignal:
		return fmt.Sprintf("external signal (code %d)", w.Code)
	case WakeTimer:
		return "timer"
	default:
		return fmt.Sprintf("other (code %d)", w.Code)
	}
}

// WakeReasonReporter reports why the controller resumed. Diagnostic only.
type WakeReasonReporter interface {
	WakeReason(ctx context.Context) (WakeReason, error)
}
