package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/safety-parachute/internal/config"
	"github.com/oshokin/safety-parachute/internal/hardware/sim"
	"github.com/oshokin/safety-parachute/internal/service/common"
	"github.com/oshokin/safety-parachute/internal/service/daemon"
)

// reservePort returns a free local TCP address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// bench is a running daemon on simulated hardware.
type bench struct {
	driver      *sim.Driver
	source      *sim.Source
	address     string
	configPath  string
	journalPath string
}

// startDaemon runs parachuted with a shared config file for both sides of the ground link.
// Returns a stop function that cancels the daemon and waits for it to exit.
func startDaemon(t *testing.T, secret string) (*bench, func()) {
	t.Helper()

	dir := t.TempDir()
	b := &bench{
		driver:      sim.NewDriver(),
		source:      sim.NewSource(),
		address:     reservePort(t),
		configPath:  filepath.Join(dir, "settings.yaml"),
		journalPath: filepath.Join(dir, "journal.jsonl"),
	}

	require.NoError(t, config.Save(b.configPath, &config.Config{
		Hardware:   config.Hardware{Driver: config.DriverSim},
		Telemetry:  config.Telemetry{Source: config.SourceSim, RefreshInterval: 10 * time.Millisecond},
		Peripheral: config.Peripheral{Backend: config.BackendDisabled},
		GroundLink: config.GroundLink{
			ListenAddress: b.address,
			ServerAddress: b.address,
			TokenSecret:   secret,
			Timeout:       2 * time.Second,
		},
		Journal: config.Journal{Path: b.journalPath},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- daemon.Run(ctx, &daemon.Options{
			ConfigPath:   b.configPath,
			InstanceName: "parachuted-integration",
			Driver:       b.driver,
			Source:       b.source,
		})
	}()

	// Wait for the ground link to answer.
	client, err := common.Dial(ctx, b.address, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	require.Eventually(t, func() bool {
		_, err := client.GetDeploymentState(ctx)
		return err == nil || secret != "" && isAuthError(err)
	}, 5*time.Second, 20*time.Millisecond)

	return b, func() {
		cancel()
		require.NoError(t, <-done)
	}
}
