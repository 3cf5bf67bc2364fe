package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/safety-parachute/internal/config"
	"github.com/oshokin/safety-parachute/internal/service/daemon"
	"github.com/oshokin/safety-parachute/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command for running the flight daemon.
	rootCmd = &cobra.Command{
		Use:   "parachuted",
		Short: "Run the parachute deployment actuator.",
		Long: `Runs the flight-side daemon of the safety parachute.

The daemon exposes the deployment command and the flight telemetry as a BLE
GATT peripheral. Writing 'y' to the deployment characteristic drives the
deployment output high and sounds the alert buzzer; writing 'n' drives it low.
Any other value is ignored. The actuator always boots disarmed.

Optional surfaces are enabled from the configuration file: the gRPC ground
link, the Prometheus metrics endpoint and the MQTT telemetry mirror. Every
processed command and sensor fault is appended to the flight journal.

Only one parachuted process may run at a time.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &daemon.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
			}

			return daemon.Run(ctx, options)
		},
	}
)

// Execute runs the parachuted CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(journalCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
}
