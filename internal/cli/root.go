// Package cli implements the Iris command-line interface using Cobra.
// Subcommands manage the coordinator daemon, accounts, and enrollment
// tokens against the local data directory.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "iris",
	Short: "Iris — Coordinate distributed AI inference",
	Long: `Iris is the coordinator for a distributed inference network.
Workers connect over WebSocket, prompts arrive over HTTP, and the
coordinator routes each task to the best available node.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
