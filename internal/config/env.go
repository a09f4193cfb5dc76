package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables understood by ApplyEnv. The names are the ones
// BACnet command line tools have always read.
const (
	EnvDatalink    = "BACNET_DATALINK"
	EnvIface       = "BACNET_IFACE"
	EnvIPPort      = "BACNET_IP_PORT"
	EnvBBMDAddress = "BACNET_BBMD_ADDRESS"
	EnvBBMDPort    = "BACNET_BBMD_PORT"
	EnvBBMDTTL     = "BACNET_BBMD_TIMETOLIVE"
	EnvSCHubURI    = "BACNET_SC_HUB_URI"
	EnvAPDUTimeout = "BACNET_APDU_TIMEOUT"
	EnvAPDURetries = "BACNET_APDU_RETRIES"
)

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from the process environment
func (s *Settings) ApplyEnv() error {
	return s.applyEnv(os.LookupEnv)
}

func (s *Settings) applyEnv(lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	getInt := func(key string, dst *int) error {
		v, ok := get(key)
		if !ok {
			return nil
		}
		// Base 0 accepts 0xBAC0 as well as 47808
		n, err := strconv.ParseInt(v, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = int(n)
		return nil
	}

	if v, ok := get(EnvDatalink); ok {
		s.Datalink = NormalizeDatalink(v)
	}
	if v, ok := get(EnvIface); ok {
		s.BIP.Interface = v
	}
	if err := getInt(EnvIPPort, &s.BIP.Port); err != nil {
		return err
	}

	if v, ok := get(EnvBBMDAddress); ok {
		if s.BIP.BBMD == nil {
			s.BIP.BBMD = &BBMDSettings{Port: 47808, TimeToLive: 60}
		}
		s.BIP.BBMD.Address = v
	}
	if s.BIP.BBMD != nil {
		if err := getInt(EnvBBMDPort, &s.BIP.BBMD.Port); err != nil {
			return err
		}
		if err := getInt(EnvBBMDTTL, &s.BIP.BBMD.TimeToLive); err != nil {
			return err
		}
	}

	if v, ok := get(EnvSCHubURI); ok {
		s.SC.HubURI = v
	}
	if err := getInt(EnvAPDUTimeout, &s.APDU.TimeoutMS); err != nil {
		return err
	}
	return getInt(EnvAPDURetries, &s.APDU.Retries)
}

// NormalizeDatalink maps the long names used by other tools
func NormalizeDatalink(v string) string {
	switch strings.ToLower(v) {
	case "bip", "bacnet/ip", "ip":
		return DatalinkBIP
	case "bsc", "bacnet/sc", "sc":
		return DatalinkBSC
	default:
		return strings.ToLower(v)
	}
}
