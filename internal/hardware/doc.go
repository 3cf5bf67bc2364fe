// Package hardware declares the contracts of the external collaborators:
// the deployment/buzzer outputs, the telemetry sensors and the wake-reason
// diagnostic. Concrete drivers live in subpackages (gpio, iio, sim).
package hardware
