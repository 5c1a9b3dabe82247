// Package main is the checkqueue binary.
//
// Usage:
//
//	checkqueue serve                    # run the engine and the HTTP API
//	checkqueue submit https://site.dev  # queue a check through the API
//	checkqueue preflight                # sanity-check the environment
//	checkqueue version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set via -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "checkqueue",
	Short: "Queue and run URL availability checks",
	Long: `checkqueue drains submitted URL checks from a store and probes them,
at most CHECKING_LIMIT at a time and at most IP_LIMIT per resolved address.
Connected clients receive every status change over Server-Sent Events.

Configuration is read from the environment; run "checkqueue preflight"
to see what will be used.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "checkqueue %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
