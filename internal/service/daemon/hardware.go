package daemon

import (
	"context"
	"fmt"

	"github.com/oshokin/safety-parachute/internal/config"
	"github.com/oshokin/safety-parachute/internal/hardware"
	"github.com/oshokin/safety-parachute/internal/hardware/gpio"
	"github.com/oshokin/safety-parachute/internal/hardware/sim"
	"github.com/oshokin/safety-parachute/internal/hardware/sysfs"
)

// openDriver returns the configured actuator driver and its closer.
func openDriver(ctx context.Context, cfg *config.Hardware) (hardware.ActuatorDriver, func() error, error) {
	if cfg.Driver == config.DriverSim {
		return sim.NewDriver(), func() error { return nil }, nil
	}

	driver, err := gpio.Open(ctx, cfg.DeployPin, cfg.BuzzerPin)
	if err != nil {
		return nil, nil, fmt.Errorf("open gpio driver: %w", err)
	}

	return driver, driver.Close, nil
}

// openSource returns the configured telemetry source.
func openSource(cfg *config.Telemetry) hardware.TelemetrySource {
	if cfg.Source == config.SourceSim {
		return sim.NewSource()
	}

	return sysfs.NewSource(cfg.PressureDevice, cfg.AccelDevice, cfg.SeaLevelHPa)
}

// wakeReporter returns the wake-reason reporter matching the hardware driver.
func wakeReporter(cfg *config.Hardware) hardware.WakeReasonReporter {
	if cfg.Driver == config.DriverSim {
		return sim.WakeReporter{}
	}

	return sysfs.NewWakeReporter(cfg.WakeupIRQPath)
}
