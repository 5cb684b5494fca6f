package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/config"
	"github.com/muurk/wbms/internal/discovery"
	"github.com/muurk/wbms/internal/logging"
	"github.com/muurk/wbms/internal/server"
	"github.com/muurk/wbms/internal/ui"
	"github.com/muurk/wbms/internal/version"
)

// Serve command flags
var (
	listenAddr string
	advertise  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WebSocket bridge",
	Long: `Start the WebSocket bridge and the host communications core.

Gateways connect to the bridge path and exchange binary messages:
inbound [deviceId][frame], outbound [targetId][frame]. Clients send JSON
control requests (connect, configure_cell_balancing,
get_cell_balancing_status, status) as text messages and receive replies,
completions and events as JSON.

Timing, measurement allocation and bridge settings come from the
configuration file. Use 'wbms-host config init' to write the defaults.`,
	Example: `  # Start with the default configuration
  wbms-host serve

  # Listen on a different address and advertise over mDNS
  wbms-host serve --listen :9000 --advertise

  # Use a specific configuration file with debug logging
  wbms-host serve --config ./rig.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides bridge.listen)")
	serveCmd.Flags().BoolVar(&advertise, "advertise", false, "Advertise the bridge over mDNS (overrides bridge.advertise)")
}

func runServe(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		reg.Bridge.Listen = listenAddr
	}
	if cmd.Flags().Changed("advertise") {
		reg.Bridge.Advertise = advertise
	}

	cfg, err := serverConfig(reg)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	if ui.IsTerminal() {
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderCommandHeader(ui.HeaderConfig{
			Title:   "wBMS bridge",
			Command: "wbms-host serve",
			Params: map[string]string{
				"Listen":  cfg.Listen,
				"Path":    cfg.Path,
				"Tick":    cfg.TickPeriod.String(),
				"Version": version.Version,
			},
		}))
	}

	if reg.Bridge.Advertise {
		adv, err := advertiseBridge(reg.Bridge)
		if err != nil {
			// The bridge is still usable by address
			logging.Warn("mDNS advertisement failed", zap.Error(err))
			if ui.IsTerminal() {
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderWarning("mDNS advertisement failed", map[string]string{
					"Error":  err.Error(),
					"Listen": reg.Bridge.Listen,
				}))
			}
		} else {
			defer adv.Shutdown()
		}
	}

	return srv.Start()
}

// serverConfig converts the registry into a bridge configuration
func serverConfig(reg *config.Registry) (*server.Config, error) {
	safety, nonSafety, err := reg.Allocations()
	if err != nil {
		return nil, fmt.Errorf("invalid allocation: %w", err)
	}
	return &server.Config{
		Listen:       reg.Bridge.Listen,
		Path:         reg.Bridge.Path,
		TickPeriod:   reg.Bridge.TickPeriod,
		CertFile:     reg.Bridge.CertFile,
		KeyFile:      reg.Bridge.KeyFile,
		Endpoint:     reg.EndpointConfig(),
		SlotCapacity: reg.Allocation.SlotCapacity,
		Safety:       safety,
		NonSafety:    nonSafety,
	}, nil
}

// advertisement builds the mDNS advertisement for the bridge settings
func advertisement(b *config.Bridge) (*discovery.Advertisement, error) {
	_, portStr, err := net.SplitHostPort(b.Listen)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", b.Listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("listen address %q needs a fixed port to advertise", b.Listen)
	}
	return &discovery.Advertisement{
		Instance: b.InstanceName,
		Port:     port,
		Path:     b.Path,
		Version:  version.Version,
		TLS:      b.CertFile != "",
	}, nil
}

func advertiseBridge(b *config.Bridge) (*discovery.Advertiser, error) {
	ad, err := advertisement(b)
	if err != nil {
		return nil, err
	}
	return discovery.Advertise(ad)
}
