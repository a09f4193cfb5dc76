package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/datalink"
	"github.com/muurk/bacscan/internal/logging"
	"github.com/muurk/bacscan/internal/registry"
	"github.com/muurk/bacscan/internal/session"
	"github.com/muurk/bacscan/internal/target"
	"github.com/muurk/bacscan/internal/ui"
)

// Session flags
var (
	whoisDest    destFlags
	iamDest      destFlags
	repeat       bool
	retryCount   int
	timeoutMS    int
	delayMS      int
	outputFile   string
	watchSession bool
)

func init() {
	rootCmd.AddCommand(whoisCmd)
	rootCmd.AddCommand(iamCmd)
}

// whoisCmd discovers devices
var whoisCmd = &cobra.Command{
	Use:   "whois [device-instance-min [device-instance-max]]",
	Short: "Send Who-Is and list the devices that answer",
	Long: `Send a BACnet Who-Is request to a device or multiple devices, and
wait for I-Am replies. Every device found is printed with its network
information as an address cache table on stdout.

device-instance limits the request to one device object instance
(0 to 4194303). Give a minimum and a maximum to ask a range.

Without --mac, --dnet or --dadr the request is a global broadcast.`,
	Example: `  # Ask every device
  bacscan whois

  # Ask device 123 only
  bacscan whois 123

  # Devices 1000 to 9000 on network 123
  bacscan whois 1000 9000 --dnet 123

  # A router at 10.0.0.1 forwarding to station 05h on network 123
  bacscan whois --mac 10.0.0.1 --dnet 123 --dadr 05

  # Over BACnet/SC, saving the table for later
  bacscan whois --hub wss://hub.example:4443/ --output devices.txt`,
	Args: cobra.MaximumNArgs(2),
	RunE: runWhois,
}

func init() {
	fs := whoisCmd.Flags()
	whoisDest.register(fs)
	fs.BoolVar(&repeat, "repeat", false, "Send the request repeatedly until interrupted")
	fs.IntVar(&retryCount, "retry", 0, "Number of retransmissions after the first send")
	fs.IntVar(&timeoutMS, "timeout", 0, "Milliseconds to wait before each retransmission (default APDU timeout x retries)")
	fs.IntVar(&delayMS, "delay", 0, "Milliseconds to wait for replies in each receive poll (default 100)")
	fs.StringVar(&outputFile, "output", "", "Also write the address table to this file")
	fs.BoolVar(&watchSession, "watch", false, "Show replies live while the session runs")
}

// iamCmd announces this node
var iamCmd = &cobra.Command{
	Use:   "iam [device-instance [vendor-id [max-apdu [segmentation]]]]",
	Short: "Send an I-Am announcing this node",
	Long: `Send a BACnet I-Am service request announcing this node.

Defaults: device-instance 4194303, vendor-id 260, max-apdu 1476 and
segmentation 3 (none). Segmentation is 0 (both), 1 (transmit),
2 (receive) or 3 (none).

Without --mac, --dnet or --dadr the I-Am goes to the local broadcast.`,
	Example: `  # Announce with the defaults
  bacscan iam

  # Announce device 1234 from vendor 8 five times
  bacscan iam 1234 8 --retry 4

  # Announce to network 5 only
  bacscan iam 1234 --dnet 5`,
	Args: cobra.MaximumNArgs(4),
	RunE: runIAm,
}

func init() {
	fs := iamCmd.Flags()
	iamDest.register(fs)
	fs.BoolVar(&repeat, "repeat", false, "Send the announcement repeatedly until interrupted")
	fs.IntVar(&retryCount, "retry", 0, "Number of additional sends")
	fs.IntVar(&delayMS, "delay", 0, "Milliseconds to listen between sends (default 100)")
}

func runWhois(cmd *cobra.Command, args []string) error {
	rng, err := parseRange(args)
	if err != nil {
		return err
	}
	retries := clampRetries(retryCount)
	dest, directed := target.Resolve(whoisDest.inputs(cmd.Flags()))
	if err := settings.Validate(); err != nil {
		return err
	}

	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout == 0 {
		timeout = settings.RequestTimeout()
	}
	if timeout == 0 {
		timeout = session.DefaultTimeout
		logging.Warn("APDU timeout is 0, using the default request timeout",
			zap.Duration("timeout", timeout))
	}
	cfg := session.DiscoveryConfig{
		Destination:   dest,
		Range:         rng,
		Retries:       retries,
		RepeatForever: repeat,
		Timeout:       timeout,
		PollDelay:     pollDelay(),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := ui.NewPrinter(nil)
	printer.PrintHeader(ui.NewHeader("Who-Is", commandLine(cmd, args),
		ui.Param{Key: "Datalink", Value: settings.Datalink},
		ui.Param{Key: "Destination", Value: describeDest(dest, directed)},
		ui.Param{Key: "Devices", Value: describeRange(rng)},
		ui.Param{Key: "Sends", Value: describeSends(retries, repeat)},
		ui.Param{Key: "Timeout", Value: timeout.String()},
	))

	transport, err := datalink.Open(ctx, settings)
	if err != nil {
		printer.PrintResult(ui.NewFailureResult("Datalink unavailable", err))
		return err
	}
	defer closeTransport(transport)

	var opts []session.Option
	var watch *ui.Watch
	if watchSession && printer.Enabled() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()

		budget := 0
		if !repeat {
			budget = 1 + retries
		}
		watch = ui.StartWatch(os.Stderr, ui.NewWatchModel("Who-Is", budget, cancel))
		obs := watch.Observer()
		opts = append(opts, session.WithObserver(&obs))
	}

	res, runErr := session.NewDiscovery(transport, cfg, opts...).Run(ctx)
	if watch != nil {
		if err := watch.Finish(runErr); err != nil {
			logging.Debug("Watch view failed", zap.Error(err))
		}
	}
	if res == nil {
		return runErr
	}

	if res.Err != nil {
		fmt.Fprintln(os.Stderr, res.Err)
	}
	if err := res.Registry.Render(os.Stdout); err != nil {
		return fmt.Errorf("failed to write address table: %w", err)
	}
	if outputFile != "" {
		if err := writeTable(outputFile, res.Registry); err != nil {
			return err
		}
	}

	details := []ui.Param{
		{Key: "Devices", Value: strconv.Itoa(res.Registry.Len())},
		{Key: "Duplicates", Value: strconv.Itoa(res.Registry.Duplicates())},
		{Key: "Sends", Value: strconv.Itoa(res.Sends)},
	}
	if outputFile != "" {
		details = append(details, ui.Param{Key: "Saved to", Value: outputFile})
	}
	if runErr != nil {
		printer.PrintResult(ui.NewFailureResult("Discovery failed", runErr, details...))
		return runErr
	}
	printer.PrintResult(ui.NewSuccessResult("Discovery complete", details...))
	return nil
}

func runIAm(cmd *cobra.Command, args []string) error {
	iam, err := parseIAm(args)
	if err != nil {
		return err
	}
	retries := clampRetries(retryCount)
	dest, directed := target.Resolve(iamDest.inputs(cmd.Flags()))
	if !directed {
		dest = bacnet.LocalBroadcast()
	}

	cfg := session.AnnouncementConfig{
		Destination:   dest,
		IAm:           iam,
		Retries:       retries,
		RepeatForever: repeat,
		PollDelay:     pollDelay(),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	destText := "local broadcast"
	if directed {
		destText = dest.String()
	}
	printer := ui.NewPrinter(nil)
	printer.PrintHeader(ui.NewHeader("I-Am", commandLine(cmd, args),
		ui.Param{Key: "Datalink", Value: settings.Datalink},
		ui.Param{Key: "Destination", Value: destText},
		ui.Param{Key: "Device", Value: strconv.FormatUint(uint64(iam.DeviceID), 10)},
		ui.Param{Key: "Vendor", Value: strconv.Itoa(int(iam.VendorID))},
		ui.Param{Key: "Max APDU", Value: strconv.FormatUint(uint64(iam.MaxAPDU), 10)},
		ui.Param{Key: "Segmentation", Value: iam.Segmentation.String()},
		ui.Param{Key: "Sends", Value: describeSends(retries, repeat)},
	))

	transport, err := datalink.Open(ctx, settings)
	if err != nil {
		printer.PrintResult(ui.NewFailureResult("Datalink unavailable", err))
		return err
	}
	defer closeTransport(transport)

	res, runErr := session.NewAnnouncement(transport, cfg).Run(ctx)
	if res != nil && res.Err != nil {
		fmt.Fprintln(os.Stdout, res.Err)
	}
	sends := 0
	if res != nil {
		sends = res.Sends
	}
	if runErr != nil {
		printer.PrintResult(ui.NewFailureResult("Announcement failed", runErr,
			ui.Param{Key: "Sends", Value: strconv.Itoa(sends)}))
		return runErr
	}
	printer.PrintResult(ui.NewSuccessResult("Announcement complete",
		ui.Param{Key: "Sends", Value: strconv.Itoa(sends)}))
	return nil
}

// pollDelay is --delay, or the configured default
func pollDelay() time.Duration {
	if delayMS > 0 {
		return time.Duration(delayMS) * time.Millisecond
	}
	return settings.PollDelay()
}

func describeSends(retries int, forever bool) string {
	if forever {
		return "until interrupted"
	}
	return strconv.Itoa(1 + retries)
}

func commandLine(cmd *cobra.Command, args []string) string {
	return strings.TrimSpace(cmd.CommandPath() + " " + strings.Join(args, " "))
}

func closeTransport(t io.Closer) {
	if err := t.Close(); err != nil && !errors.Is(err, context.Canceled) {
		logging.Debug("Failed to close datalink", zap.Error(err))
	}
}

// writeTable saves the address table where other tools can read it
func writeTable(path string, r *registry.Registry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := r.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
