package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/wbms/internal/discovery"
	"github.com/muurk/wbms/internal/ui"
)

// Discover command flags
var (
	discoverTimeout int
	discoverWait    string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find bridges on the local network",
	Long: `Browse mDNS for wBMS bridges started with --advertise and list their
WebSocket URLs.`,
	Example: `  # Browse for 5 seconds (default)
  wbms-host discover

  # Longer browse for busy networks
  wbms-host discover --timeout 15

  # Wait for one bridge instance to come up
  wbms-host discover --wait rig-a --timeout 30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		timeout := time.Duration(discoverTimeout) * time.Second

		if discoverWait != "" {
			fmt.Fprintf(out, "Waiting for bridge %q (timeout: %ds)...\n\n", discoverWait, discoverTimeout)
			scanner := discovery.NewScanner()
			scanner.Timeout = timeout
			bridge, err := scanner.WaitForBridge(discoverWait)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.RenderBridges([]*discovery.Bridge{bridge}))
			return nil
		}

		fmt.Fprintf(out, "Browsing for %s services (timeout: %ds)...\n\n", discovery.ServiceType, discoverTimeout)

		bridges, err := discovery.ScanForBridges(timeout)
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		fmt.Fprintln(out, ui.RenderBridges(bridges))
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 5, "Browse timeout in seconds")
	discoverCmd.Flags().StringVar(&discoverWait, "wait", "", "Wait for the bridge with this instance name")
}
