package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/bacscan/internal/config"
	"github.com/muurk/bacscan/internal/discovery"
	"github.com/muurk/bacscan/internal/hub"
	"github.com/muurk/bacscan/internal/registry"
	"github.com/muurk/bacscan/internal/ui"
)

// Hub command flags
var (
	hubListen    string
	hubCert      string
	hubKey       string
	hubAdvertise bool
	hubPlain     bool
	scanSeconds  int
)

func init() {
	cacheCmd.AddCommand(cacheShowCmd)
	configCmd.AddCommand(configInitCmd)
	hubCmd.AddCommand(hubScanCmd)

	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(hubCmd)
	rootCmd.AddCommand(configCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Work with saved address cache tables",
}

// cacheShowCmd reads a table written by whois --output
var cacheShowCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "List the devices in an address cache table",
	Long: `Read an address cache table, as printed by whois or saved with
--output, and list the devices in it. Entries marked as duplicates are
skipped.`,
	Example: `  bacscan whois --output devices.txt
  bacscan cache show devices.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheShow,
}

// hubCmd runs a BACnet/SC hub
var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run a BACnet/SC hub for lab use",
	Long: `Run a minimal BACnet Secure Connect hub. Nodes connect over a
WebSocket and the hub relays unicast and broadcast messages between them.

Without --cert and --key a self-signed certificate is generated at
startup. With --advertise the hub is announced over mDNS so that
"bacscan --hub auto" can find it.`,
	Example: `  # Self-signed hub on the default port, found with --hub auto
  bacscan hub --advertise

  # Hub with a real certificate
  bacscan hub --listen :47443 --cert hub.crt --key hub.key

  # Plain WebSocket on loopback
  bacscan hub --plain --listen 127.0.0.1:4080`,
	Args: cobra.NoArgs,
	RunE: runHub,
}

func init() {
	fs := hubCmd.Flags()
	fs.StringVar(&hubListen, "listen", "", "Listen address (default from config, :4443)")
	fs.StringVar(&hubCert, "cert", "", "TLS certificate file")
	fs.StringVar(&hubKey, "key", "", "TLS private key file")
	fs.BoolVar(&hubAdvertise, "advertise", false, "Announce the hub over mDNS")
	fs.BoolVar(&hubPlain, "plain", false, "Serve ws:// without TLS")

	hubScanCmd.Flags().IntVar(&scanSeconds, "timeout", 5, "Scan timeout in seconds")
}

// hubScanCmd lists hubs advertised over mDNS
var hubScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List BACnet/SC hubs advertised on the local network",
	Long: `Browse mDNS for BACnet/SC hubs and print the URI of each one.
Any of them can be passed to --hub.`,
	Example: `  bacscan hub scan
  bacscan hub scan --timeout 10`,
	Args: cobra.NoArgs,
	RunE: runHubScan,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open address table: %w", err)
	}
	defer f.Close()

	peers, err := registry.ParseTable(f)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(nil)
	printer.PrintHeader(ui.NewHeader("Address cache", commandLine(cmd, args)))

	r := registry.New()
	for _, p := range peers {
		r.Add(p.DeviceID, p.MaxAPDU, p.Address)
	}
	if err := r.Render(os.Stdout); err != nil {
		return fmt.Errorf("failed to write address table: %w", err)
	}

	printer.PrintResult(ui.NewSuccessResult("Address table read",
		ui.Param{Key: "File", Value: args[0]},
		ui.Param{Key: "Devices", Value: strconv.Itoa(len(peers))},
	))
	return nil
}

func runHub(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	cfg := hub.Config{
		Listen:    settings.Hub.Listen,
		CertPath:  settings.Hub.CertFile,
		KeyPath:   settings.Hub.KeyFile,
		Advertise: settings.Hub.Advertise,
		Plain:     hubPlain,
	}
	if flags.Changed("listen") {
		cfg.Listen = hubListen
	}
	if flags.Changed("cert") || flags.Changed("key") {
		cfg.CertPath, cfg.KeyPath = hubCert, hubKey
	}
	if flags.Changed("advertise") {
		cfg.Advertise = hubAdvertise
	}
	if (cfg.CertPath == "") != (cfg.KeyPath == "") {
		return fmt.Errorf("--cert and --key must be given together")
	}

	srv, err := hub.NewServer(cfg)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tlsMode := "self-signed"
	switch {
	case cfg.Plain:
		tlsMode = "none"
	case cfg.CertPath != "":
		tlsMode = cfg.CertPath
	}
	printer := ui.NewPrinter(nil)
	printer.PrintHeader(ui.NewHeader("BACnet/SC hub", commandLine(cmd, args),
		ui.Param{Key: "URI", Value: srv.URI()},
		ui.Param{Key: "VMAC", Value: srv.Hub().VMAC().String()},
		ui.Param{Key: "TLS", Value: tlsMode},
		ui.Param{Key: "mDNS", Value: strconv.FormatBool(cfg.Advertise)},
	))
	printer.Println(ui.HelpStyle.Render("Press Ctrl+C to stop"))

	if err := srv.ListenAndServe(ctx); err != nil {
		printer.PrintResult(ui.NewFailureResult("Hub stopped", err))
		return err
	}
	printer.PrintResult(ui.NewSuccessResult("Hub stopped"))
	return nil
}

func runHubScan(cmd *cobra.Command, args []string) error {
	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanSeconds) * time.Second

	printer := ui.NewPrinter(nil)
	printer.PrintHeader(ui.NewHeader("Hub scan", commandLine(cmd, args),
		ui.Param{Key: "Service", Value: discovery.ServiceType},
		ui.Param{Key: "Timeout", Value: scanner.Timeout.String()},
	))

	hubs, err := scanner.ScanForHubs(cmd.Context())
	if err != nil {
		printer.PrintResult(ui.NewFailureResult("Scan failed", err))
		return err
	}
	for _, h := range hubs {
		fmt.Printf("%-30s %s\n", h.Instance, h.URI())
	}
	printer.PrintResult(ui.NewSuccessResult("Scan complete",
		ui.Param{Key: "Hubs", Value: strconv.Itoa(len(hubs))}))
	return nil
}
