package gpio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/hardware"
)

var errTestPin = errors.New("test pin failure")

// recordingPin counts Out calls and can be told to fail them.
type recordingPin struct {
	*gpiotest.Pin

	mu      sync.Mutex
	outs    []gpio.Level
	failOut bool
	failPWM bool
}

// Out records the level and forwards it to the test pin.
func (p *recordingPin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOut {
		return errTestPin
	}

	p.outs = append(p.outs, l)

	return p.Pin.Out(l)
}

// PWM forwards to the test pin unless told to fail.
func (p *recordingPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	if p.failPWM {
		return errTestPin
	}

	return p.Pin.PWM(duty, f)
}

// outCount returns the number of Out calls so far.
func (p *recordingPin) outCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.outs)
}

func newPins() (*recordingPin, *recordingPin) {
	deploy := &recordingPin{Pin: &gpiotest.Pin{N: "GPIO5", Num: 5, L: gpio.High}}
	buzzer := &recordingPin{Pin: &gpiotest.Pin{N: "GPIO18", Num: 18, L: gpio.High}}

	return deploy, buzzer
}

// TestNew_DrivesOutputsLow verifies the boot default of both outputs.
func TestNew_DrivesOutputsLow(t *testing.T) {
	t.Parallel()

	deploy, buzzer := newPins()

	_, err := New(context.Background(), deploy, buzzer)
	require.NoError(t, err)
	require.Equal(t, gpio.Low, deploy.Read())
	require.Equal(t, gpio.Low, buzzer.Read())
}

// TestDriver_SetAndPulse checks output levels and PWM parameters.
func TestDriver_SetAndPulse(t *testing.T) {
	t.Parallel()

	deploy, buzzer := newPins()

	d, err := New(context.Background(), deploy, buzzer)
	require.NoError(t, err)

	require.NoError(t, d.Set(deployment.High))
	require.Equal(t, gpio.High, deploy.Read())

	require.NoError(t, d.Pulse(1000, time.Hour))
	require.Equal(t, gpio.DutyHalf, buzzer.D)
	require.Equal(t, 1000*physic.Hertz, buzzer.F)

	require.NoError(t, d.Silence())
	require.Equal(t, gpio.Low, buzzer.Read())

	require.NoError(t, d.Set(deployment.Low))
	require.Equal(t, gpio.Low, deploy.Read())
}

// TestDriver_PulseEnds verifies the timer silences the buzzer after the pulse duration.
func TestDriver_PulseEnds(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		deploy, buzzer := newPins()

		d, err := New(context.Background(), deploy, buzzer)
		require.NoError(t, err)

		before := buzzer.outCount()

		require.NoError(t, d.Pulse(1000, 10*time.Second))

		time.Sleep(9 * time.Second)
		synctest.Wait()
		require.Equal(t, before, buzzer.outCount())

		// Restarting mid-pulse pushes the deadline out.
		require.NoError(t, d.Pulse(1000, 10*time.Second))

		time.Sleep(9 * time.Second)
		synctest.Wait()
		require.Equal(t, before, buzzer.outCount())

		time.Sleep(2 * time.Second)
		synctest.Wait()
		require.Equal(t, before+1, buzzer.outCount())
		require.Equal(t, gpio.Low, buzzer.Read())
	})
}

// TestDriver_Failures verifies pin errors are wrapped with the hardware sentinels.
func TestDriver_Failures(t *testing.T) {
	t.Parallel()

	deploy, buzzer := newPins()

	d, err := New(context.Background(), deploy, buzzer)
	require.NoError(t, err)

	deploy.failOut = true
	require.ErrorIs(t, d.Set(deployment.High), hardware.ErrActuation)

	buzzer.failPWM = true
	require.ErrorIs(t, d.Pulse(1000, time.Second), hardware.ErrAlert)

	buzzer.failOut = true
	require.ErrorIs(t, d.Silence(), hardware.ErrAlert)
}

// TestNew_ResetFailure verifies a failing pin aborts construction.
func TestNew_ResetFailure(t *testing.T) {
	t.Parallel()

	deploy, buzzer := newPins()
	deploy.failOut = true

	d, err := New(context.Background(), deploy, buzzer)
	require.ErrorIs(t, err, hardware.ErrActuation)
	require.Nil(t, d)
}
