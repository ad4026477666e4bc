package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverAddr is the daemon address (host:port) for the WebSocket
	// connection.
	serverAddr string

	// serverPath is the URL path of the tracking endpoint.
	serverPath string

	// outputFormat controls the output format for all commands (table or
	// json).
	outputFormat string

	// requestTimeout bounds a single request/response round trip.
	requestTimeout time.Duration
)

// rootCmd is the top-level cobra command for geotrackerctl.
var rootCmd = &cobra.Command{
	Use:   "geotrackerctl",
	Short: "CLI client for the GeoTracker daemon",
	Long:  "geotrackerctl talks to the geotrackerd tracking endpoint over WebSocket to inspect and manage sessions.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:6789",
		"geotrackerd address (host:port)")
	rootCmd.PersistentFlags().StringVar(&serverPath, "path", "/",
		"tracking endpoint path")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 10*time.Second,
		"request timeout")

	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(activeCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
