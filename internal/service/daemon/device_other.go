//go:build !linux

package daemon

import (
	"errors"

	"github.com/oshokin/safety-parachute/internal/service/peripheral"
)

// errNoHCI is returned on platforms without a BlueZ HCI socket.
var errNoHCI = errors.New("hci backend is only available on linux")

// newHCIDevice reports that the HCI backend is unavailable.
func newHCIDevice() (peripheral.Device, error) {
	return nil, errNoHCI
}
