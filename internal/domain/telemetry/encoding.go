package telemetry

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

const (
	// FloatSize is the encoded size of a float characteristic value.
	FloatSize = 4
	// MillisSize is the encoded size of the elapsed-time characteristic value.
	MillisSize = 4
)

// errShortValue is returned when a characteristic value is too short to decode.
var errShortValue = errors.New("value is too short")

// EncodeFloat encodes v as an IEEE-754 float32 in little-endian byte order.
func EncodeFloat(v float64) []byte {
	buf := make([]byte, FloatSize)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))

	return buf
}

// DecodeFloat is the inverse of EncodeFloat.
func DecodeFloat(b []byte) (float64, error) {
	if len(b) < FloatSize {
		return 0, errShortValue
	}

	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
}

// EncodeMillis encodes d as unsigned milliseconds in little-endian byte order.
// Values wrap after about 49.7 days, like a microcontroller millis counter.
func EncodeMillis(d time.Duration) []byte {
	buf := make([]byte, MillisSize)
	binary.LittleEndian.PutUint32(buf, uint32(d.Milliseconds())) //nolint:gosec // Wrap-around is the documented behavior.

	return buf
}

// DecodeMillis is the inverse of EncodeMillis.
func DecodeMillis(b []byte) (time.Duration, error) {
	if len(b) < MillisSize {
		return 0, errShortValue
	}

	return time.Duration(binary.LittleEndian.Uint32(b)) * time.Millisecond, nil
}
