// Package commands implements the rlectl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the rled admin address (host:port) for the HTTP API.
	serverAddr string
)

// rootCmd is the top-level cobra command for rlectl.
var rootCmd = &cobra.Command{
	Use:   "rlectl",
	Short: "CLI client for the rled link relay daemon",
	Long: "rlectl queries the rled admin HTTP API for link counters and " +
		"decodes RLE bursts offline.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9310",
		"rled admin address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(decodeCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
