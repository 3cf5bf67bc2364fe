// Package telemetry samples the flight sensors on a fixed interval and
// writes the encoded values into the characteristic slots.
package telemetry
