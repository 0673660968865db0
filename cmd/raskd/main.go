// Command raskd runs a Rask peer-to-peer synchronization daemon: it
// hosts a set of tenants, listens for and dials peer connections, and
// keeps each tenant's hash tree reconciled against every connected peer.
//
// Grounded on the teacher's cmd/*/main.go layout (a spf13/cobra root
// command with subcommands in the same package, PersistentPreRunE
// wiring the global logger before any subcommand body runs) but trimmed
// to this daemon's two commands instead of the teacher's plugin-loading,
// multi-subsystem CLI.
package main

import (
	"fmt"
	"os"

	"github.com/raskfs/rask/internal/rlog"
	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagJSONLog bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "raskd",
	Short: "raskd runs a Rask peer-to-peer file synchronization node",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rlog.Initialize(flagJSONLog, flagDebug); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a config file (yaml/toml/json)")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json", false, "emit structured JSON logs")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug-level logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer rlog.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
