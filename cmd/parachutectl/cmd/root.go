package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/safety-parachute/internal/config"
	"github.com/oshokin/safety-parachute/internal/service/ctl"
	"github.com/oshokin/safety-parachute/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// serverAddress overrides ground_link.server_address.
	serverAddress string
	// token is an explicit bearer token.
	token string
	// timeout overrides the per-call timeout.
	timeout time.Duration

	// rootCmd is the ground-link client.
	rootCmd = &cobra.Command{
		Use:   "parachutectl",
		Short: "Control a safety parachute over the ground link.",
		Long: `Ground-side client of parachuted.

Sends deployment commands and reads the actuator state and flight telemetry
over the gRPC ground link. The server address and the token secret are read
from the configuration file; when a secret is configured a short-lived token
is minted for every invocation unless --token is given.`,
		SilenceUsage: true,
	}
)

// options builds the shared command options from the persistent flags.
func options(cmd *cobra.Command) ctl.Options {
	return ctl.Options{
		ConfigPath:    configPath,
		ServerAddress: serverAddress,
		Token:         token,
		Timeout:       timeout,
		Out:           cmd.OutOrStdout(),
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// Execute runs the parachutectl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&serverAddress, "server", "s", "", "ground link address, overrides the configuration")
	flags.StringVarP(&token, "token", "t", "", "bearer token, overrides local minting")
	flags.DurationVar(&timeout, "timeout", 0, "per-call timeout, overrides the configuration")

	rootCmd.AddCommand(armCmd, disarmCmd, sendCmd, statusCmd, telemetryCmd, watchCmd, tokenCmd)
}
