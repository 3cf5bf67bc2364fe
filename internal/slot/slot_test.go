package slot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/safety-parachute/internal/domain/fault"
)

// TestValue_StoreLoadClear verifies copy semantics and clearing.
func TestValue_StoreLoadClear(t *testing.T) {
	t.Parallel()

	var v Value
	require.Nil(t, v.Load())

	in := []byte{1, 2, 3}
	v.Store(in)
	in[0] = 9

	out := v.Load()
	require.Equal(t, []byte{1, 2, 3}, out)

	out[1] = 9
	require.Equal(t, []byte{1, 2, 3}, v.Load())

	v.Clear()
	require.Nil(t, v.Load())
}

// TestFaults_DisjointOwners verifies concurrent raise/clear of disjoint bits.
func TestFaults_DisjointOwners(t *testing.T) {
	t.Parallel()

	var (
		f  Faults
		wg sync.WaitGroup
	)

	for range 100 {
		wg.Add(2)

		go func() {
			defer wg.Done()
			f.Raise(fault.Actuation)
		}()

		go func() {
			defer wg.Done()
			f.Raise(fault.AltitudeSensor)
			f.Clear(fault.AltitudeSensor)
		}()
	}

	wg.Wait()

	require.Equal(t, fault.Actuation, f.Load())
	require.Equal(t, []byte{byte(fault.Actuation)}, f.Bytes())
}
