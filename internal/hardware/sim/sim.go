// Package sim provides bench implementations of the hardware contracts.
//
// They let the daemon run on a workstation without GPIO lines or IIO
// sensors, and they support fault injection for exercising the fault paths.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/hardware"
)

// ErrInjected is the cause attached to injected faults.
var ErrInjected = errors.New("injected fault")

// Driver is an in-memory hardware.ActuatorDriver.
type Driver struct {
	// now returns the current time; replaced in tests.
	now func() time.Time

	// level is the last level written to the deployment output.
	level deployment.Level
	// pulseUntil is the instant the current pulse ends.
	pulseUntil time.Time
	// toneHz is the tone of the last pulse.
	toneHz uint32
	// pulses counts successful Pulse calls.
	pulses int
	// failSet makes Set fail.
	failSet bool
	// failPulse makes Pulse fail.
	failPulse bool
	// mu protects the fields above.
	mu sync.Mutex
}

// NewDriver returns a Driver with the output low.
func NewDriver() *Driver {
	return &Driver{now: time.Now}
}

// Set records the output level.
func (d *Driver) Set(level deployment.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failSet {
		return fmt.Errorf("%w: %w", hardware.ErrActuation, ErrInjected)
	}

	d.level = level

	return nil
}

// Pulse records a pulse ending after duration.
func (d *Driver) Pulse(toneHz uint32, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failPulse {
		return fmt.Errorf("%w: %w", hardware.ErrAlert, ErrInjected)
	}

	d.toneHz = toneHz
	d.pulseUntil = d.now().Add(duration)
	d.pulses++

	return nil
}

// Silence ends the current pulse.
func (d *Driver) Silence() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pulseUntil = time.Time{}

	return nil
}

// FailSet toggles injected failures of Set.
func (d *Driver) FailSet(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failSet = fail
}

// FailPulse toggles injected failures of Pulse.
func (d *Driver) FailPulse(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failPulse = fail
}

// Level returns the last level written to the deployment output.
func (d *Driver) Level() deployment.Level {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.level
}

// Sounding reports whether a pulse is currently active.
func (d *Driver) Sounding() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.now().Before(d.pulseUntil)
}

// Pulses returns the number of pulses started so far.
func (d *Driver) Pulses() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pulses
}

// Tone returns the tone of the last pulse.
func (d *Driver) Tone() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.toneHz
}

// Source is a synthetic hardware.TelemetrySource following a ballistic
// ascent and a parachute descent.
type Source struct {
	// start is the instant the simulated flight began.
	start time.Time
	// apogee is the peak altitude in meters.
	apogee float64
	// ascent is the time to apogee.
	ascent time.Duration
	// failAltitude makes Altitude fail.
	failAltitude bool
	// failAcceleration makes Acceleration fail.
	failAcceleration bool
	// mu protects the failure toggles.
	mu sync.Mutex
}

// Default flight profile.
const (
	defaultApogee      = 300.0
	defaultAscent      = 8 * time.Second
	descentRate        = 6.0 // m/s under canopy.
	standardGravity    = 9.80665
	ascentAcceleration = 2 * standardGravity
)

// NewSource starts a simulated flight now.
func NewSource() *Source {
	return &Source{
		start:  time.Now(),
		apogee: defaultApogee,
		ascent: defaultAscent,
	}
}

// Altitude follows a parabola up to apogee and a constant descent rate afterwards.
func (s *Source) Altitude(_ context.Context) (float64, error) {
	s.mu.Lock()
	fail := s.failAltitude
	s.mu.Unlock()

	if fail {
		return 0, fmt.Errorf("%w: altitude: %w", hardware.ErrSensor, ErrInjected)
	}

	t := s.Elapsed().Seconds()
	ascent := s.ascent.Seconds()

	if t <= ascent {
		x := t / ascent

		return s.apogee * (1 - (1-x)*(1-x)), nil
	}

	return math.Max(0, s.apogee-descentRate*(t-ascent)), nil
}

// Acceleration reports thrust during the first part of the ascent and 1 g afterwards.
func (s *Source) Acceleration(_ context.Context) (telemetry.Vector, error) {
	s.mu.Lock()
	fail := s.failAcceleration
	s.mu.Unlock()

	if fail {
		return telemetry.Vector{}, fmt.Errorf("%w: acceleration: %w", hardware.ErrSensor, ErrInjected)
	}

	if s.Elapsed() < s.ascent/4 {
		return telemetry.Vector{Z: ascentAcceleration}, nil
	}

	return telemetry.Vector{Z: standardGravity}, nil
}

// Elapsed returns the time since the simulated flight began.
func (s *Source) Elapsed() time.Duration {
	return time.Since(s.start)
}

// FailAltitude toggles injected altitude failures.
func (s *Source) FailAltitude(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failAltitude = fail
}

// FailAcceleration toggles injected acceleration failures.
func (s *Source) FailAcceleration(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failAcceleration = fail
}

// WakeReporter returns a fixed wake reason.
type WakeReporter struct {
	// Reason is returned by WakeReason.
	Reason hardware.WakeReason
}

// WakeReason returns the configured reason.
func (r WakeReporter) WakeReason(context.Context) (hardware.WakeReason, error) {
	return r.Reason, nil
}
