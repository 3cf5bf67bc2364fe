package sysfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/hardware"
)

// kPaToHPa converts the IIO pressure unit (kPa) to hPa.
const kPaToHPa = 10.0

// Source implements hardware.TelemetrySource over IIO sysfs attributes.
type Source struct {
	// pressureDir is the IIO device directory of the barometer.
	pressureDir string
	// accelDir is the IIO device directory of the accelerometer.
	accelDir string
	// seaLevelHPa is the reference pressure for altitude computation.
	seaLevelHPa float64
	// start is the monotonic instant the source was created.
	start time.Time
}

// NewSource creates a Source reading from the given IIO device directories.
func NewSource(pressureDir, accelDir string, seaLevelHPa float64) *Source {
	return &Source{
		pressureDir: filepath.Clean(pressureDir),
		accelDir:    filepath.Clean(accelDir),
		seaLevelHPa: seaLevelHPa,
		start:       time.Now(),
	}
}

// Altitude reads the pressure and converts it to meters.
func (s *Source) Altitude(_ context.Context) (float64, error) {
	kPa, err := readProcessed(s.pressureDir, "in_pressure")
	if err != nil {
		return 0, fmt.Errorf("%w: pressure: %w", hardware.ErrSensor, err)
	}

	return telemetry.AltitudeFromPressure(kPa*kPaToHPa, s.seaLevelHPa), nil
}

// Acceleration reads the three accelerometer channels in m/s².
func (s *Source) Acceleration(_ context.Context) (telemetry.Vector, error) {
	scale, err := readFloat(filepath.Join(s.accelDir, "in_accel_scale"))
	if err != nil {
		return telemetry.Vector{}, fmt.Errorf("%w: accel scale: %w", hardware.ErrSensor, err)
	}

	var axes [3]float64

	for i, axis := range []string{"x", "y", "z"} {
		raw, err := readFloat(filepath.Join(s.accelDir, "in_accel_"+axis+"_raw"))
		if err != nil {
			return telemetry.Vector{}, fmt.Errorf("%w: accel %s: %w", hardware.ErrSensor, axis, err)
		}

		axes[i] = raw * scale
	}

	return telemetry.Vector{X: axes[0], Y: axes[1], Z: axes[2]}, nil
}

// Elapsed returns the monotonic time since the source was created.
func (s *Source) Elapsed() time.Duration {
	return time.Since(s.start)
}

// readProcessed reads <prefix>_input, falling back to <prefix>_raw * <prefix>_scale.
func readProcessed(dir, prefix string) (float64, error) {
	v, err := readFloat(filepath.Join(dir, prefix+"_input"))
	if err == nil {
		return v, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}

	raw, err := readFloat(filepath.Join(dir, prefix+"_raw"))
	if err != nil {
		return 0, err
	}

	scale, err := readFloat(filepath.Join(dir, prefix+"_scale"))
	if err != nil {
		return 0, err
	}

	return raw * scale, nil
}

// readFloat reads a single numeric sysfs attribute.
func readFloat(path string) (float64, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(contents)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	return v, nil
}
