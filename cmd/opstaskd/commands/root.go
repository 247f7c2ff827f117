// Package commands implements opstaskd's CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opstaskd",
		Short: "opstaskd - single-node scheduled task runner",
		Long: `opstaskd runs cron- and event-triggered shell tasks under
controlled OS accounts, backed by a durable SQLite task store, and
exposes a JSON/HTTP control plane.

Examples:
  opstaskd serve --db ./opstaskd.db
  opstaskd serve --unix-socket /run/opstaskd.sock`,
		Version: version,
	}

	rootCmd.AddCommand(newServeCmd())

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug-level logging")

	return rootCmd
}
