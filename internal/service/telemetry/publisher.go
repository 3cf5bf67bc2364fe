package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oshokin/safety-parachute/internal/domain/fault"
	domain "github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/hardware"
	"github.com/oshokin/safety-parachute/internal/logger"
	"github.com/oshokin/safety-parachute/internal/slot"
)

// DefaultInterval matches the 50 Hz barometer output data rate.
const DefaultInterval = 20 * time.Millisecond

// Observer is notified after every refresh with the sample and the sensor error, if any.
// Implementations must not block.
type Observer interface {
	SampleRefreshed(ctx context.Context, sample *domain.Sample, err error)
}

// Options configures a Publisher.
type Options struct {
	// Interval is the refresh period. Defaults to DefaultInterval.
	Interval time.Duration
	// Observers are notified after every refresh.
	Observers []Observer
}

// Publisher is the only writer of the telemetry slots.
type Publisher struct {
	// source samples the sensors.
	source hardware.TelemetrySource
	// slots receives the encoded values.
	slots *slot.Table
	// interval is the refresh period.
	interval time.Duration
	// observers are notified after every refresh.
	observers []Observer
	// latest is the most recent sample.
	latest atomic.Pointer[domain.Sample]
}

// NewPublisher returns a Publisher writing into slots.
func NewPublisher(source hardware.TelemetrySource, slots *slot.Table, opts *Options) *Publisher {
	if opts == nil {
		opts = new(Options)
	}

	p := &Publisher{
		source:    source,
		slots:     slots,
		interval:  opts.Interval,
		observers: opts.Observers,
	}

	if p.interval <= 0 {
		p.interval = DefaultInterval
	}

	return p
}

// Refresh samples every signal and overwrites the slots.
// A failing signal has its slot cleared and its fault bit raised; the other
// signals are still published and the joined sensor errors are returned.
func (p *Publisher) Refresh(ctx context.Context) (*domain.Sample, error) {
	sample := &domain.Sample{
		Timestamp: time.Now(),
		Elapsed:   p.source.Elapsed(),
	}

	var errs []error

	altitude, err := p.source.Altitude(ctx)
	if err != nil {
		p.slots.Altitude.Clear()
		sample.Faults |= fault.AltitudeSensor
		errs = append(errs, fmt.Errorf("altitude: %w", err))
	} else {
		sample.Altitude = altitude
		p.slots.Altitude.Store(domain.EncodeFloat(altitude))
	}

	acceleration, err := p.source.Acceleration(ctx)
	if err != nil {
		p.slots.AccelerationX.Clear()
		p.slots.AccelerationY.Clear()
		p.slots.AccelerationZ.Clear()
		sample.Faults |= fault.AccelerationSensor
		errs = append(errs, fmt.Errorf("acceleration: %w", err))
	} else {
		sample.Acceleration = acceleration
		p.slots.AccelerationX.Store(domain.EncodeFloat(acceleration.X))
		p.slots.AccelerationY.Store(domain.EncodeFloat(acceleration.Y))
		p.slots.AccelerationZ.Store(domain.EncodeFloat(acceleration.Z))
	}

	p.slots.Elapsed.Store(domain.EncodeMillis(sample.Elapsed))

	p.slots.Faults.Raise(sample.Faults)
	p.slots.Faults.Clear(fault.Sensors &^ sample.Faults)

	p.latest.Store(sample)

	err = errors.Join(errs...)

	for _, o := range p.observers {
		o.SampleRefreshed(ctx, sample.Clone(), err)
	}

	return sample.Clone(), err
}

// Latest returns a copy of the most recent sample, or nil before the first refresh.
func (p *Publisher) Latest() *domain.Sample {
	return p.latest.Load().Clone()
}

// Interval returns the refresh period.
func (p *Publisher) Interval() time.Duration {
	return p.interval
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
// Sensor failures are logged when they start and when they clear, not on every tick.
func (p *Publisher) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "telemetry")

	logger.InfoKV(ctx, "Telemetry publisher started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var previous fault.Set

	for {
		sample, err := p.Refresh(ctx)

		switch {
		case err != nil && sample.Faults != previous:
			logger.ErrorKV(ctx, "Sensor read failed", "faults", sample.Faults, "error", err)
		case err == nil && previous != 0:
			logger.InfoKV(ctx, "Sensors recovered")
		}

		previous = sample.Faults

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Telemetry publisher stopped")

			return nil
		case <-ticker.C:
		}
	}
}
