// Wbms-host runs the wBMS host communications core behind a WebSocket bridge.
//
// The bridge accepts frames from radio gateways, drives connection,
// liveness, heartbeat and measurement aggregation, and exposes the cell
// balancing commands to WebSocket clients. Offline helpers decode and encode
// frames for debugging.
//
// Usage:
//
//	wbms-host [command] [flags]
//
// See 'wbms-host --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/wbms/internal/config"
	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "wbms-host",
	Short: "wBMS host communications bridge",
	Long: `Host-side communications core for a wireless battery management system.

The serve command bridges gateway traffic over WebSocket and runs the
connection, heartbeat, measurement and cell balancing protocols. The decode
and encode-heartbeat commands work offline on single frames.

Logging is silent unless --log-level or WBMS_LOG_LEVEL is set.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			return logging.Initialize(logLevel)
		}
		return logging.InitializeFromEnv()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: OS config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeHeartbeatCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadRegistry loads --config, or the default configuration file
func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.LoadRegistry()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Line("wbms-host"))
	},
}
