// Wrtpresence reports which client devices are associated with DD-WRT and
// AsusWRT routers and access points, and resolves their MAC addresses to
// hostnames via DHCP lease data.
//
// Routers are polled over their web UI (HTTP), SSH or Telnet as set per
// device in the config file.
//
// Usage:
//
//	wrtpresence [command] [flags]
//
// Run 'wrtpresence config init' to create a starting config file.
// See 'wrtpresence --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/wrtpresence/internal/logging"
	"github.com/muurk/wrtpresence/internal/version"
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
	Use:   "wrtpresence",
	Short: "Device presence from DD-WRT and AsusWRT routers",
	Long: `Poll DD-WRT and AsusWRT routers and access points for associated
wireless clients and resolve them to hostnames via DHCP leases.

Devices are read from the config file (see 'wrtpresence config init').
Logging is silent unless --log-level or WRTPRESENCE_LOG_LEVEL is set.`,
	Version:       version.Version,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default $XDG_CONFIG_HOME/wrtpresence/config.yaml or $WRTPRESENCE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrtpresence %s\n", version.Full())
	},
}
