package hardware

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestWakeReasonString checks the diagnostic rendering of every cause.
func TestWakeReasonString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "external signal (code 42)", WakeReason{Cause: WakeExternalSignal, Code: 42}.String())
	require.Equal(t, "timer", WakeReason{Cause: WakeTimer}.String())
	require.Equal(t, "other (code 0)", WakeReason{}.String())
}
