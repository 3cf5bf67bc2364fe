package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/safety-parachute/internal/domain/fault"
	domain "github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/hardware"
	"github.com/oshokin/safety-parachute/internal/slot"
)

var errTestBus = errors.New("i2c bus timeout")

// fakeSource returns fixed readings and configurable errors.
type fakeSource struct {
	altitude     float64
	acceleration domain.Vector
	elapsed      time.Duration
	altitudeErr  error
	accelErr     error
	mu           sync.Mutex
}

func (f *fakeSource) Altitude(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.altitude, f.altitudeErr
}

func (f *fakeSource) Acceleration(context.Context) (domain.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.acceleration, f.accelErr
}

func (f *fakeSource) Elapsed() time.Duration {
	return f.elapsed
}

func (f *fakeSource) setAltitudeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.altitudeErr = err
}

// countingObserver counts refreshes.
type countingObserver struct {
	count int
	last  *domain.Sample
	mu    sync.Mutex
}

func (c *countingObserver) SampleRefreshed(_ context.Context, sample *domain.Sample, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count++
	c.last = sample
}

func (c *countingObserver) refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.count
}

// decodeFloat decodes a slot value or fails the test.
func decodeFloat(t *testing.T, b []byte) float64 {
	t.Helper()

	v, err := domain.DecodeFloat(b)
	require.NoError(t, err)

	return v
}

// TestPublisher_RefreshWritesSlots checks that every slot holds the encoded reading.
func TestPublisher_RefreshWritesSlots(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		altitude:     152.5,
		acceleration: domain.Vector{X: 0.5, Y: -1.25, Z: 9.75},
		elapsed:      4321 * time.Millisecond,
	}
	slots := new(slot.Table)
	p := NewPublisher(source, slots, nil)

	require.Nil(t, p.Latest())

	sample, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 152.5, sample.Altitude, 1e-9)

	require.InDelta(t, 152.5, decodeFloat(t, slots.Altitude.Load()), 1e-4)
	require.InDelta(t, 0.5, decodeFloat(t, slots.AccelerationX.Load()), 1e-6)
	require.InDelta(t, -1.25, decodeFloat(t, slots.AccelerationY.Load()), 1e-6)
	require.InDelta(t, 9.75, decodeFloat(t, slots.AccelerationZ.Load()), 1e-6)

	elapsed, err := domain.DecodeMillis(slots.Elapsed.Load())
	require.NoError(t, err)
	require.Equal(t, 4321*time.Millisecond, elapsed)
	require.Equal(t, []byte{0xe1, 0x10, 0x00, 0x00}, slots.Elapsed.Load())

	require.Equal(t, sample, p.Latest())
	require.Equal(t, DefaultInterval, p.Interval())
}

// TestPublisher_SensorFailure checks that only the failing slot is cleared.
func TestPublisher_SensorFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := &fakeSource{altitude: 100, acceleration: domain.Vector{Z: 9.8}}
	slots := new(slot.Table)
	slots.Faults.Raise(fault.Actuation)
	p := NewPublisher(source, slots, nil)

	_, err := p.Refresh(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, slots.Altitude.Load())

	source.setAltitudeErr(errors.Join(hardware.ErrSensor, errTestBus))

	sample, err := p.Refresh(ctx)
	require.ErrorIs(t, err, hardware.ErrSensor)
	require.True(t, sample.Faults.Has(fault.AltitudeSensor))
	require.Empty(t, slots.Altitude.Load())
	require.NotEmpty(t, slots.AccelerationZ.Load())
	require.NotEmpty(t, slots.Elapsed.Load())
	require.Equal(t, fault.Actuation|fault.AltitudeSensor, slots.Faults.Load())

	source.setAltitudeErr(nil)

	_, err = p.Refresh(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, slots.Altitude.Load())
	require.Equal(t, fault.Actuation, slots.Faults.Load())
}

// TestPublisher_Run checks the refresh cadence and shutdown.
func TestPublisher_Run(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		observer := new(countingObserver)
		p := NewPublisher(&fakeSource{altitude: 10}, new(slot.Table), &Options{
			Interval:  20 * time.Millisecond,
			Observers: []Observer{observer},
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() {
			done <- p.Run(ctx)
		}()

		time.Sleep(90 * time.Millisecond)
		synctest.Wait()
		require.Equal(t, 5, observer.refreshes())

		cancel()
		require.NoError(t, <-done)
	})
}
