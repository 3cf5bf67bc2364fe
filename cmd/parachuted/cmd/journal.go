package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/safety-parachute/internal/config"
	"github.com/oshokin/safety-parachute/internal/repository/journal"
)

// journalPath overrides journal.path from the configuration file.
var journalPath string

// journalCmd prints the flight journal.
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print the flight journal.",
	Long: `Prints every record of the flight journal, oldest first.

The journal path is taken from the configuration file unless --path is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := journalPath
		if path == "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			path = cfg.Journal.Path
		}

		records, err := journal.ReadAll(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		for _, rec := range records {
			line := fmt.Sprintf("%s %-16s", rec.Time.Format(time.RFC3339Nano), rec.Kind)

			if rec.Command != "" {
				line += fmt.Sprintf(" %s via %s", rec.Command, rec.Origin)
			}

			if rec.State != nil {
				line += " phase=" + rec.State.Phase.String()
			}

			line += " faults=" + rec.Faults.String()

			if rec.Detail != "" {
				line += " (" + rec.Detail + ")"
			}

			if _, err = fmt.Fprintln(out, line); err != nil {
				return err
			}
		}

		return nil
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	journalCmd.Flags().StringVarP(&journalPath, "path", "p", "", "journal file, overrides the configuration")
}
