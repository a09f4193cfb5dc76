// Package target resolves the destination of a discovery or announcement
// request from the optional --mac, --dnet and --dadr inputs.
package target

import (
	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/logging"
	"go.uber.org/zap"
)

// Inputs holds the raw destination fragments supplied by the user.
// The Has* fields record whether a flag was given at all.
type Inputs struct {
	MAC    string
	HasMAC bool
	Net    int64
	HasNet bool
	Adr    string
	HasAdr bool
}

// Resolve picks the destination for a request and reports whether it is
// directed (anything other than the global broadcast).
//
// Priority:
//  1. nothing usable supplied: global broadcast
//  2. MAC and station address: station on Net, or on every network
//  3. MAC only: that MAC on Net, or on the local network
//  4. network only: broadcast on Net, or on every network
//
// Unparsable addresses and network numbers outside 0..65535 count as not
// supplied. They never raise an error.
func Resolve(in Inputs) (bacnet.Address, bool) {
	var mac, adr []byte
	directed := false

	if in.HasMAC {
		parsed, err := bacnet.ParseMAC(in.MAC)
		if err != nil {
			logging.Debug("Ignoring unparsable MAC", zap.String("mac", in.MAC), zap.Error(err))
		} else {
			mac = parsed
			directed = true
		}
	}

	netValid := in.HasNet && in.Net >= 0 && in.Net <= bacnet.BroadcastNetwork
	if netValid {
		directed = true
	} else if in.HasNet {
		logging.Debug("Ignoring out of range network number", zap.Int64("dnet", in.Net))
	}

	if in.HasAdr {
		parsed, err := bacnet.ParseMAC(in.Adr)
		if err != nil {
			logging.Debug("Ignoring unparsable DADR", zap.String("dadr", in.Adr), zap.Error(err))
		} else {
			adr = parsed
			directed = true
		}
	}

	if !directed {
		return bacnet.GlobalBroadcast(), false
	}

	network := func(fallback uint16) uint16 {
		if netValid {
			return uint16(in.Net)
		}
		return fallback
	}

	switch {
	case len(mac) > 0 && len(adr) > 0:
		return bacnet.Address{MAC: mac, Net: network(bacnet.BroadcastNetwork), Adr: adr}, true
	case len(mac) > 0:
		return bacnet.Address{MAC: mac, Net: network(0)}, true
	default:
		// A station address means nothing without a router MAC
		return bacnet.Address{Net: network(bacnet.BroadcastNetwork)}, true
	}
}
