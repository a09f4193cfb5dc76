package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/logging"
	"github.com/muurk/bacscan/internal/target"
)

// I-Am defaults: the highest instance so the announcement never collides
// with a real device, the ASHRAE vendor id and a BACnet/IP sized APDU
const (
	defaultVendorID = 260
	defaultMaxAPDU  = 1476
	minMaxAPDU      = 50
)

// Destination flags shared by whois and iam
type destFlags struct {
	mac  string
	dnet int64
	dadr string
}

func (d *destFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&d.mac, "mac", "", "Destination MAC: hex pairs (05, 00:21:70:7e:32:bb) or ip[:port]")
	fs.Int64Var(&d.dnet, "dnet", -1, "Destination network number (0 = local, 65535 = all networks)")
	fs.StringVar(&d.dadr, "dadr", "", "Station address on the destination network")
}

// inputs reports which flags were actually given
func (d *destFlags) inputs(fs *pflag.FlagSet) target.Inputs {
	return target.Inputs{
		MAC:    d.mac,
		HasMAC: fs.Changed("mac"),
		Net:    d.dnet,
		HasNet: fs.Changed("dnet"),
		Adr:    d.dadr,
		HasAdr: fs.Changed("dadr"),
	}
}

// parseNumber accepts decimal, 0x hex and 0 octal like the C tools
func parseNumber(name, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return n, nil
}

func parseInstance(name, s string) (uint32, error) {
	n, err := parseNumber(name, s)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > bacnet.MaxInstance {
		return 0, fmt.Errorf("%s=%d - not greater than %d", name, n, bacnet.MaxInstance)
	}
	return uint32(n), nil
}

// clampRetries treats a negative --retry as no retries, as the C tools do
func clampRetries(n int) int {
	if n < 0 {
		logging.Debug("Negative retry count, sending once", zap.Int("retry", n))
		return 0
	}
	return n
}

// parseRange reads [device-instance-min [device-instance-max]]. A single
// value limits the request to that one instance.
func parseRange(args []string) (bacnet.InstanceRange, error) {
	switch len(args) {
	case 0:
		return bacnet.InstanceRange{}, nil
	case 1:
		n, err := parseInstance("device-instance-min", args[0])
		if err != nil {
			return bacnet.InstanceRange{}, err
		}
		return bacnet.NewInstanceRange(n, n), nil
	case 2:
		low, err := parseInstance("device-instance-min", args[0])
		if err != nil {
			return bacnet.InstanceRange{}, err
		}
		high, err := parseInstance("device-instance-max", args[1])
		if err != nil {
			return bacnet.InstanceRange{}, err
		}
		return bacnet.NewInstanceRange(low, high), nil
	default:
		return bacnet.InstanceRange{}, fmt.Errorf("too many arguments: want at most 2, got %d", len(args))
	}
}

// parseIAm reads [device-instance [vendor-id [max-apdu [segmentation]]]]
func parseIAm(args []string) (bacnet.IAm, error) {
	m := bacnet.IAm{
		DeviceID:     bacnet.MaxInstance,
		MaxAPDU:      defaultMaxAPDU,
		Segmentation: bacnet.SegmentationNone,
		VendorID:     defaultVendorID,
	}
	if len(args) > 4 {
		return m, fmt.Errorf("too many arguments: want at most 4, got %d", len(args))
	}

	if len(args) > 0 {
		id, err := parseInstance("device-instance", args[0])
		if err != nil {
			return m, err
		}
		m.DeviceID = id
	}
	if len(args) > 1 {
		n, err := parseNumber("vendor-id", args[1])
		if err != nil {
			return m, err
		}
		if n < 0 || n > 65535 {
			return m, fmt.Errorf("vendor-id=%d - not greater than 65535", n)
		}
		m.VendorID = uint16(n)
	}
	if len(args) > 2 {
		n, err := parseNumber("max-apdu", args[2])
		if err != nil {
			return m, err
		}
		if n < minMaxAPDU || n > 65535 {
			return m, fmt.Errorf("max-apdu=%d - must be between %d and 65535", n, minMaxAPDU)
		}
		m.MaxAPDU = uint32(n)
	}
	if len(args) > 3 {
		n, err := parseNumber("segmentation", args[3])
		if err != nil {
			return m, err
		}
		if n < int64(bacnet.SegmentationBoth) || n > int64(bacnet.SegmentationNone) {
			return m, fmt.Errorf("segmentation=%d - must be between 0 and 3", n)
		}
		m.Segmentation = bacnet.Segmentation(n)
	}
	return m, nil
}

// describeRange renders a range for the header box
func describeRange(r bacnet.InstanceRange) string {
	if !r.Limited {
		return "all devices"
	}
	if r.Low == r.High {
		return strconv.FormatUint(uint64(r.Low), 10)
	}
	return fmt.Sprintf("%d - %d", r.Low, r.High)
}

// describeDest renders a destination for the header box
func describeDest(dest bacnet.Address, directed bool) string {
	if !directed {
		return "global broadcast"
	}
	return dest.String()
}
