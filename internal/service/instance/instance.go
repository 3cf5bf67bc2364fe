package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"
)

// commLength is the length Linux truncates process names to in /proc/<pid>/stat.
const commLength = 15

// ErrAlreadyRunning is returned when another process with the same executable name is alive.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Lister returns a snapshot of the running processes.
type Lister func() ([]ps.Process, error)

// Guard detects other running copies of an executable.
type Guard struct {
	// name is the executable name to look for.
	name string
	// self is the PID skipped while scanning.
	self int
	// list returns running processes.
	list Lister
}

// New returns a Guard for name, skipping the current process.
// An empty name resolves to the basename of the running executable.
func New(name string) *Guard {
	if name == "" {
		name = filepath.Base(os.Args[0])
	}

	return &Guard{
		name: name,
		self: os.Getpid(),
		list: ps.Processes,
	}
}

// WithLister replaces the process source, used by tests.
func (g *Guard) WithLister(list Lister) *Guard {
	g.list = list
	return g
}

// Check returns ErrAlreadyRunning with the PID of the first other process
// running the same executable.
func (g *Guard) Check() error {
	processes, err := g.list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processes {
		if process.Pid() == g.self {
			continue
		}

		if !sameExecutable(process.Executable(), g.name) {
			continue
		}

		return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, g.name, process.Pid())
	}

	return nil
}

// sameExecutable compares a process name with want, accounting for comm
// truncation and a Windows ".exe" suffix.
func sameExecutable(got, want string) bool {
	got = strings.TrimSuffix(got, ".exe")
	want = strings.TrimSuffix(want, ".exe")

	if got == want {
		return true
	}

	return len(got) == commLength && len(want) > commLength && strings.HasPrefix(want, got)
}
