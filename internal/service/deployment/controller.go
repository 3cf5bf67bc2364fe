package deployment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/fault"
	"github.com/oshokin/safety-parachute/internal/hardware"
	"github.com/oshokin/safety-parachute/internal/logger"
	"github.com/oshokin/safety-parachute/internal/slot"
)

const (
	// DefaultToneHz is the alert buzzer frequency.
	DefaultToneHz = 1000
	// DefaultAlertDuration is the length of one alert pulse.
	DefaultAlertDuration = 10 * time.Second
)

// Event describes one processed command.
type Event struct {
	// Command is the parsed command, Ignore included.
	Command domain.Command
	// Origin names the link the write arrived on.
	Origin string
	// State is the snapshot after the command was applied.
	State *domain.State
	// Err is the hardware failure, if any.
	Err error
}

// Observer is notified after every processed command.
// Implementations run under the controller lock and must not block
// or call back into the Controller.
type Observer interface {
	CommandProcessed(ctx context.Context, event *Event)
}

// Options configures a Controller.
type Options struct {
	// ToneHz is the alert buzzer frequency.
	ToneHz uint32
	// AlertDuration is the length of one alert pulse.
	AlertDuration time.Duration
	// Status receives the one-byte status encoding after every transition.
	Status *slot.Value
	// Faults receives the actuation and alert fault bits.
	Faults *slot.Faults
	// Observers are notified after every processed command.
	Observers []Observer
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Controller owns the actuator state.
type Controller struct {
	// driver drives the deployment output and the buzzer.
	driver hardware.ActuatorDriver
	// toneHz is the alert buzzer frequency.
	toneHz uint32
	// alertDuration is the length of one alert pulse.
	alertDuration time.Duration
	// status is the status characteristic slot.
	status *slot.Value
	// faults is the shared fault characteristic slot.
	faults *slot.Faults
	// observers are notified after every processed command.
	observers []Observer
	// now is the controller clock.
	now func() time.Time

	// state is the current actuator state.
	state *domain.State
	// pulseDeadline is when the current alert pulse ends.
	pulseDeadline time.Time
	// mu serializes transitions. Driver calls made under it never block.
	mu sync.Mutex
}

// NewController returns a Controller in the boot state (Disarmed, output low)
// and publishes the initial status.
func NewController(driver hardware.ActuatorDriver, opts *Options) *Controller {
	if opts == nil {
		opts = new(Options)
	}

	c := &Controller{
		driver:        driver,
		toneHz:        opts.ToneHz,
		alertDuration: opts.AlertDuration,
		status:        opts.Status,
		faults:        opts.Faults,
		observers:     opts.Observers,
		now:           opts.Now,
	}

	if c.toneHz == 0 {
		c.toneHz = DefaultToneHz
	}

	if c.alertDuration <= 0 {
		c.alertDuration = DefaultAlertDuration
	}

	if c.status == nil {
		c.status = new(slot.Value)
	}

	if c.faults == nil {
		c.faults = new(slot.Faults)
	}

	if c.now == nil {
		c.now = time.Now
	}

	c.state = &domain.State{
		Timestamp: c.now(),
		Phase:     domain.Disarmed,
		Output:    domain.Low,
	}

	c.publishLocked()

	return c
}

// HandleWrite parses payload and applies the resulting command.
// Malformed payloads are ignored without error. A hardware failure leaves
// a latched fault bit and is returned; it is never retried.
func (c *Controller) HandleWrite(ctx context.Context, origin string, payload []byte) (*domain.State, error) {
	ctx = logger.WithKV(ctx, "origin", origin)
	cmd := domain.ParseCommand(payload)

	c.mu.Lock()

	now := c.now()

	if cmd == domain.Ignore {
		snapshot := c.snapshotLocked(now)
		c.notify(ctx, &Event{Command: cmd, Origin: origin, State: snapshot})

		c.mu.Unlock()

		logger.DebugKV(ctx, "Ignoring unrecognised deployment command", "payload_len", len(payload))

		return snapshot, nil
	}

	var err error

	switch cmd {
	case domain.Arm:
		err = c.armLocked(now, origin)
	case domain.Disarm:
		err = c.disarmLocked(now, origin)
	}

	c.publishLocked()
	snapshot := c.snapshotLocked(now)

	// Observers see events in transition order.
	c.notify(ctx, &Event{Command: cmd, Origin: origin, State: snapshot, Err: err})

	c.mu.Unlock()

	if err != nil {
		logger.ErrorKV(ctx, "Deployment command failed",
			"command", cmd, "phase", snapshot.Phase, "faults", snapshot.Faults, "error", err)

		return nil, err
	}

	logger.InfoKV(ctx, "Deployment command applied",
		"command", cmd, "phase", snapshot.Phase, "output", snapshot.Output, "pulse_active", snapshot.PulseActive)

	return snapshot, nil
}

// State returns a snapshot of the actuator state.
func (c *Controller) State(_ context.Context) *domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked(c.now())
}

// armLocked drives the output high and restarts the alert pulse.
func (c *Controller) armLocked(now time.Time, origin string) error {
	if err := c.driver.Set(domain.High); err != nil {
		c.state.Faults |= fault.Actuation

		return fmt.Errorf("arm: %w", wrapHardware(hardware.ErrActuation, err))
	}

	c.state.Faults &^= fault.Actuation
	c.transitionLocked(now, origin, domain.Arm, domain.ArmedDeployed, domain.High)

	if err := c.driver.Pulse(c.toneHz, c.alertDuration); err != nil {
		c.state.Faults |= fault.Alert
		c.pulseDeadline = time.Time{}

		return fmt.Errorf("start alert pulse: %w", wrapHardware(hardware.ErrAlert, err))
	}

	c.state.Faults &^= fault.Alert
	c.pulseDeadline = now.Add(c.alertDuration)

	return nil
}

// disarmLocked drives the output low and silences the buzzer.
func (c *Controller) disarmLocked(now time.Time, origin string) error {
	if err := c.driver.Set(domain.Low); err != nil {
		c.state.Faults |= fault.Actuation

		return fmt.Errorf("disarm: %w", wrapHardware(hardware.ErrActuation, err))
	}

	c.state.Faults &^= fault.Actuation
	c.transitionLocked(now, origin, domain.Disarm, domain.Disarmed, domain.Low)
	c.pulseDeadline = time.Time{}

	if err := c.driver.Silence(); err != nil {
		c.state.Faults |= fault.Alert

		return fmt.Errorf("silence alert: %w", wrapHardware(hardware.ErrAlert, err))
	}

	c.state.Faults &^= fault.Alert

	return nil
}

// transitionLocked records a successful output write.
func (c *Controller) transitionLocked(
	now time.Time,
	origin string,
	cmd domain.Command,
	phase domain.Phase,
	output domain.Level,
) {
	c.state.Timestamp = now
	c.state.Origin = origin
	c.state.LastCommand = cmd
	c.state.Phase = phase
	c.state.Output = output
}

// snapshotLocked clones the state and evaluates PulseActive at now.
func (c *Controller) snapshotLocked(now time.Time) *domain.State {
	snapshot := c.state.Clone()
	snapshot.PulseActive = now.Before(c.pulseDeadline)

	return snapshot
}

// publishLocked writes the status byte and the hardware fault bits.
// Bits that stay raised are never transiently cleared.
func (c *Controller) publishLocked() {
	c.status.Store([]byte{c.state.Phase.StatusByte()})

	raised := c.state.Faults & fault.Hardware
	c.faults.Raise(raised)
	c.faults.Clear(fault.Hardware &^ raised)
}

// notify fans the event out to the observers. Callers hold mu.
func (c *Controller) notify(ctx context.Context, event *Event) {
	for _, o := range c.observers {
		o.CommandProcessed(ctx, event)
	}
}

// wrapHardware makes sure err matches sentinel with errors.Is.
func wrapHardware(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}

	return fmt.Errorf("%w: %w", sentinel, err)
}
