package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/safety-parachute/internal/service/ctl"
)

var (
	// attempts bounds delivery attempts of deployment commands.
	attempts int
	// watchInterval is the polling period of watch.
	watchInterval time.Duration
	// tokenSubject overrides the minted token subject.
	tokenSubject string
	// tokenScopes are the minted token scopes.
	tokenScopes []string
	// tokenTTL overrides the minted token lifetime.
	tokenTTL time.Duration
)

var armCmd = &cobra.Command{
	Use:   "arm",
	Short: "Deploy the parachute (writes 'y').",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return ctl.Arm(ctx, &ctl.SendOptions{Options: options(cmd), Attempts: attempts})
	},
}

var disarmCmd = &cobra.Command{
	Use:   "disarm",
	Short: "Drive the deployment output low (writes 'n').",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return ctl.Disarm(ctx, &ctl.SendOptions{Options: options(cmd), Attempts: attempts})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <payload>",
	Short: "Write a raw payload to the deployment characteristic.",
	Long: `Writes the payload verbatim. Only the first byte is significant:
'y' arms, 'n' disarms, anything else is ignored by the device.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		return ctl.Send(ctx, &ctl.SendOptions{Options: options(cmd), Payload: []byte(args[0]), Attempts: attempts})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the deployment state.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		opts := options(cmd)

		return ctl.Status(ctx, &opts)
	},
}

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Print the latest telemetry sample.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		opts := options(cmd)

		return ctl.Telemetry(ctx, &opts)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll state and telemetry until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return ctl.Watch(ctx, &ctl.WatchOptions{Options: options(cmd), Interval: watchInterval})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a ground link token from the configured secret.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return ctl.MintToken(&ctl.TokenOptions{
			ConfigPath: configPath,
			Subject:    tokenSubject,
			Scopes:     tokenScopes,
			TTL:        tokenTTL,
			Out:        cmd.OutOrStdout(),
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	for _, c := range []*cobra.Command{armCmd, disarmCmd, sendCmd} {
		c.Flags().IntVarP(&attempts, "attempts", "a", 0, "give up after this many unreachable attempts (0 retries until interrupted)")
	}

	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", ctl.DefaultWatchInterval, "polling interval")

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject, defaults to user@host")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "granted scopes: control, telemetry (default both)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime, overrides ground_link.token_ttl")
}
