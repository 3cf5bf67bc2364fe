//go:build linux

package daemon

import (
	"fmt"

	"github.com/go-ble/ble/linux"

	"github.com/oshokin/safety-parachute/internal/service/peripheral"
)

// newHCIDevice opens the default HCI adapter.
func newHCIDevice() (peripheral.Device, error) {
	device, err := linux.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("open hci device: %w", err)
	}

	return device, nil
}
