// Package telemetry contains the flight telemetry domain types.
//
// A Sample holds the latest altitude, acceleration vector and elapsed time.
// No history is kept: every refresh produces a new Sample that replaces the
// previous one. The package also owns the little-endian wire encodings served
// over the GATT characteristics.
package telemetry
