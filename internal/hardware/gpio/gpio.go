// Package gpio implements hardware.ActuatorDriver on top of periph.io.
//
// The deployment MOSFET is a plain digital output. The buzzer is driven with
// a 50% duty PWM at the alert tone and silenced by a timer when the pulse
// duration elapses, so Pulse never blocks the caller.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/hardware"
	"github.com/oshokin/safety-parachute/internal/logger"
)

// errPinNotFound is returned when a configured pin name is unknown to the host.
var errPinNotFound = errors.New("gpio pin not found")

// Driver drives the deployment output and the buzzer.
type Driver struct {
	// ctx carries the logger used by the pulse timer.
	ctx context.Context //nolint:containedctx // The timer callback has no caller context.
	// deploy is the deployment MOSFET output.
	deploy gpio.PinOut
	// buzzer is the alert buzzer output.
	buzzer gpio.PinOut
	// pulseTimer silences the buzzer when the current pulse ends.
	pulseTimer *time.Timer
	// mu serializes buzzer operations with the timer callback.
	mu sync.Mutex
}

// Open initializes the host drivers, resolves the pins by name and returns a Driver.
func Open(ctx context.Context, deployPin, buzzerPin string) (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	deploy := gpioreg.ByName(deployPin)
	if deploy == nil {
		return nil, fmt.Errorf("%w: %s", errPinNotFound, deployPin)
	}

	buzzer := gpioreg.ByName(buzzerPin)
	if buzzer == nil {
		return nil, fmt.Errorf("%w: %s", errPinNotFound, buzzerPin)
	}

	return New(ctx, deploy, buzzer)
}

// New wraps already resolved pins and drives both of them low.
func New(ctx context.Context, deploy, buzzer gpio.PinOut) (*Driver, error) {
	d := &Driver{
		ctx:    logger.WithName(ctx, "gpio"),
		deploy: deploy,
		buzzer: buzzer,
	}

	if err := deploy.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("%w: reset %s: %w", hardware.ErrActuation, deploy, err)
	}

	if err := buzzer.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("%w: reset %s: %w", hardware.ErrAlert, buzzer, err)
	}

	logger.InfoKV(d.ctx, "GPIO outputs ready", "deploy_pin", deploy.String(), "buzzer_pin", buzzer.String())

	return d, nil
}

// Set drives the deployment output to level.
func (d *Driver) Set(level deployment.Level) error {
	if err := d.deploy.Out(gpio.Level(level)); err != nil {
		return fmt.Errorf("%w: %s %s: %w", hardware.ErrActuation, d.deploy, level, err)
	}

	return nil
}

// Pulse starts the buzzer at toneHz and arms a timer that silences it after duration.
// A pulse already in progress is restarted.
func (d *Driver) Pulse(toneHz uint32, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopTimerLocked()

	if err := d.buzzer.PWM(gpio.DutyHalf, physic.Frequency(toneHz)*physic.Hertz); err != nil {
		return fmt.Errorf("%w: %s pwm %d Hz: %w", hardware.ErrAlert, d.buzzer, toneHz, err)
	}

	var timer *time.Timer

	timer = time.AfterFunc(duration, func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		// A newer pulse or Silence already replaced this timer.
		if d.pulseTimer != timer {
			return
		}

		d.pulseTimer = nil

		if err := d.buzzer.Out(gpio.Low); err != nil {
			logger.ErrorKV(d.ctx, "Failed to end alert pulse", "pin", d.buzzer.String(), "error", err)
		}
	})
	d.pulseTimer = timer

	return nil
}

// Silence stops the buzzer and cancels the pending pulse timer.
func (d *Driver) Silence() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopTimerLocked()

	if err := d.buzzer.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: %s low: %w", hardware.ErrAlert, d.buzzer, err)
	}

	return nil
}

// Close silences the buzzer. The deployment output is left as is.
func (d *Driver) Close() error {
	return d.Silence()
}

// stopTimerLocked cancels the current pulse timer. Caller must hold d.mu.
func (d *Driver) stopTimerLocked() {
	if d.pulseTimer == nil {
		return
	}

	d.pulseTimer.Stop()
	d.pulseTimer = nil
}
