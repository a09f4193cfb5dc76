// Bacscan finds BACnet devices and announces itself on a BACnet network.
//
// It sends Who-Is requests over BACnet/IP or BACnet Secure Connect,
// collects the I-Am replies and prints them as an address cache table
// other BACnet tools can read. It can also broadcast its own I-Am and
// run a small BACnet/SC hub for lab use.
//
// Usage:
//
//	bacscan [command] [flags]
//
// Settings come from the config file, then BACNET_* environment
// variables, then command line flags.
// See 'bacscan --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/bacscan/internal/config"
	"github.com/muurk/bacscan/internal/logging"
	"github.com/muurk/bacscan/internal/version"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath   string
	datalinkName string
	ifaceName    string
	ipPort       int
	hubURI       string
	logLevel     string
)

// settings is filled in by loadSettings before any command runs
var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:   "bacscan",
	Short: "BACnet device discovery and announcement",
	Long: `Find BACnet devices with Who-Is and announce this node with I-Am.

Works over BACnet/IP (UDP, optionally registered with a BBMD as a foreign
device) and BACnet Secure Connect (WebSocket to a hub). Discovered devices
are printed as an address cache table on stdout; progress and errors go
to stderr.`,
	Version:           version.Version,
	PersistentPreRunE: loadSettings,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config directory)")
	rootCmd.PersistentFlags().StringVar(&datalinkName, "datalink", "", "Datalink to use (bip, bsc)")
	rootCmd.PersistentFlags().StringVar(&ifaceName, "iface", "", "Network interface for BACnet/IP")
	rootCmd.PersistentFlags().IntVar(&ipPort, "port", 47808, "UDP port for BACnet/IP")
	rootCmd.PersistentFlags().StringVar(&hubURI, "hub", "", "BACnet/SC hub URI, or \"auto\" to find one over mDNS (implies --datalink bsc)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

// loadSettings applies the config file, the environment and the global
// flags in that order, then starts logging
func loadSettings(cmd *cobra.Command, args []string) error {
	s, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := s.ApplyEnv(); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("datalink") {
		s.Datalink = config.NormalizeDatalink(datalinkName)
	}
	if flags.Changed("iface") {
		s.BIP.Interface = ifaceName
	}
	if flags.Changed("port") {
		s.BIP.Port = ipPort
	}
	if flags.Changed("hub") {
		s.SC.HubURI = hubURI
		if !flags.Changed("datalink") {
			s.Datalink = config.DatalinkBSC
		}
	}

	if err := logging.Initialize(logLevelFor(s, flags.Changed("log-level"))); err != nil {
		return err
	}
	logging.Debug("Settings loaded")

	settings = s
	// Argument errors have been reported by now; later failures are not
	// usage problems
	cmd.SilenceUsage = true
	return nil
}

// logLevelFor picks the flag, then the environment, then the file
func logLevelFor(s *config.Settings, flagSet bool) string {
	if flagSet {
		return logLevel
	}
	if os.Getenv(logging.LogLevelEnvVar) != "" || os.Getenv(logging.DebugEnvVar) != "" {
		// Initialize reads them itself
		return ""
	}
	return s.LogLevel
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bacscan %s\n", version.Full())
	},
}
