package deployment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/safety-parachute/internal/domain/fault"
)

// TestParseCommand verifies the first-byte mapping, including empty and unknown payloads.
func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]Command{
		"":       Ignore,
		"y":      Arm,
		"yes":    Arm,
		"n":      Disarm,
		"no":     Disarm,
		"x":      Ignore,
		"Y":      Ignore,
		"\x00y":  Ignore,
		" y":     Ignore,
		"nyyyyy": Disarm,
	}
	for payload, want := range cases {
		require.Equal(t, want, ParseCommand([]byte(payload)), "payload %q", payload)
	}

	require.Equal(t, Ignore, ParseCommand(nil))
}

// TestPhaseStatusByte checks the status characteristic encoding.
func TestPhaseStatusByte(t *testing.T) {
	t.Parallel()

	require.Equal(t, byte('y'), ArmedDeployed.StatusByte())
	require.Equal(t, byte('n'), Disarmed.StatusByte())
}

// TestStateClone verifies that Clone copies fields and handles nil safely.
func TestStateClone(t *testing.T) {
	t.Parallel()
	require.Nil(t, (*State)(nil).Clone())

	s := &State{
		Timestamp:   time.Now().UTC().Truncate(time.Second),
		Origin:      "ble",
		LastCommand: Arm,
		Phase:       ArmedDeployed,
		Output:      High,
		PulseActive: true,
		Faults:      fault.Alert,
	}

	c := s.Clone()
	require.Equal(t, s, c)
	require.NotSame(t, s, c)

	// Mutating the clone must not leak back.
	c.Phase = Disarmed
	require.Equal(t, ArmedDeployed, s.Phase)
}
