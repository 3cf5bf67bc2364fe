package sysfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oshokin/safety-parachute/internal/hardware"
)

// DefaultWakeupIRQPath is the kernel attribute holding the IRQ that last woke the system.
const DefaultWakeupIRQPath = "/sys/power/pm_wakeup_irq"

// WakeReporter implements hardware.WakeReasonReporter.
type WakeReporter struct {
	// path is the wakeup IRQ attribute to read.
	path string
}

// NewWakeReporter creates a reporter reading path, or DefaultWakeupIRQPath when empty.
func NewWakeReporter(path string) *WakeReporter {
	if path == "" {
		path = DefaultWakeupIRQPath
	}

	return &WakeReporter{path: filepath.Clean(path)}
}

// WakeReason reports an external signal with the IRQ number when the kernel
// recorded one. A missing attribute means the system did not resume from sleep.
func (r *WakeReporter) WakeReason(_ context.Context) (hardware.WakeReason, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return hardware.WakeReason{Cause: hardware.WakeOther}, nil
		}

		return hardware.WakeReason{}, fmt.Errorf("read wakeup irq: %w", err)
	}

	irq, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		return hardware.WakeReason{}, fmt.Errorf("parse wakeup irq: %w", err)
	}

	return hardware.WakeReason{Cause: hardware.WakeExternalSignal, Code: irq}, nil
}
