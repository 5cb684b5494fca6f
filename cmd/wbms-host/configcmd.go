package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/wbms/internal/config"
	"github.com/muurk/wbms/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var initForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.GetConfigPath(); err != nil {
				return err
			}
		}

		if _, err := os.Stat(path); err == nil && !initForce {
			if !ui.IsTerminal() {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if !ui.OverwriteConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), path) {
				return nil
			}
		}

		written, err := config.CreateDefaultConfig(configPath)
		if err != nil {
			return err
		}
		result := ui.NewSuccessResult("Configuration written", nil).AddDetail("Path", written)

		if configPath == "" {
			// Drop any registry cached before the file existed
			reg, err := config.ReloadRegistry()
			if err != nil {
				return fmt.Errorf("written configuration does not load: %w", err)
			}
			result.AddDetail("Listen", reg.Bridge.Listen).
				AddDetail("Heartbeat", reg.Timing.HeartbeatPeriod.String())
		}

		fmt.Fprintln(cmd.OutOrStdout(), result.Render())
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(reg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the default configuration path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file without asking")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}
