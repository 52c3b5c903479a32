package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/wrtpresence/internal/config"
	"github.com/muurk/wrtpresence/internal/ui"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	Long: `Write an example config file with one router and one access point.

Edit the hosts and credentials before running other commands. The file is
created readable by the current user only since it holds passwords.`,
	Example: `  # Create the default config file
  wrtpresence config init

  # Create a config somewhere else
  wrtpresence config init --config ./wrtpresence.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config with defaults applied",
	Long: `Load, validate and print the config file with all defaults applied.
Passwords are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	if err := config.Example().Save(path); err != nil {
		return err
	}

	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Config file written",
		ui.Param{Key: "Path", Value: path},
		ui.Param{Key: "Next", Value: "edit hosts and credentials, then run 'wrtpresence probe'"},
	)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(redact(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// redact returns a copy of cfg with passwords masked
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	out.Devices = make(map[string]*config.Device, len(cfg.Devices))
	for name, d := range cfg.Devices {
		masked := *d
		if masked.Password != "" {
			masked.Password = "********"
		}
		out.Devices[name] = &masked
	}
	return &out
}
