// Package slot holds the characteristic value slots shared between the
// controllers that write them and the GATT handlers that serve them.
//
// Every slot is single-writer/many-reader and lock-free, so a remote read
// never observes a torn value and never blocks a writer.
package slot

import (
	"sync/atomic"

	"github.com/oshokin/safety-parachute/internal/domain/fault"
)

// Value is an atomically replaced byte value.
type Value struct {
	v atomic.Pointer[[]byte]
}

// Store replaces the value with a private copy of b.
func (s *Value) Store(b []byte) {
	cloned := append([]byte(nil), b...)
	s.v.Store(&cloned)
}

// Clear drops the value so that reads return an empty payload.
func (s *Value) Clear() {
	s.v.Store(nil)
}

// Load returns a copy of the current value, or nil when the slot is empty.
func (s *Value) Load() []byte {
	p := s.v.Load()
	if p == nil {
		return nil
	}

	return append([]byte(nil), *p...)
}

// Faults is an atomically updated fault bitmask.
// Different owners may raise and clear disjoint bits concurrently.
type Faults struct {
	bits atomic.Uint32
}

// Raise sets the provided bits.
func (f *Faults) Raise(bits fault.Set) {
	f.bits.Or(uint32(bits))
}

// Clear resets the provided bits.
func (f *Faults) Clear(bits fault.Set) {
	f.bits.And(^uint32(bits))
}

// Load returns the current bitmask.
func (f *Faults) Load() fault.Set {
	return fault.Set(f.bits.Load()) //nolint:gosec // Only the low byte is ever set.
}

// Bytes returns the single-byte encoding served by the fault characteristic.
func (f *Faults) Bytes() []byte {
	return []byte{byte(f.Load())}
}

// Table holds every characteristic slot served by the peripheral.
// It must not be copied after first use.
type Table struct {
	// Altitude is the altitude in meters, float32 little-endian.
	Altitude Value
	// AccelerationX is the x-axis acceleration in m/s², float32 little-endian.
	AccelerationX Value
	// AccelerationY is the y-axis acceleration in m/s², float32 little-endian.
	AccelerationY Value
	// AccelerationZ is the z-axis acceleration in m/s², float32 little-endian.
	AccelerationZ Value
	// Elapsed is the time since boot in milliseconds, uint32 little-endian.
	Elapsed Value
	// Status is the one-byte deployment status.
	Status Value
	// Faults is the shared fault bitmask.
	Faults Faults
}
