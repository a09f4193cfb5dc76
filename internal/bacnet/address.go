package bacnet

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// MaxMACLen is the longest datalink address carried in an Address
	MaxMACLen = 7

	// BroadcastNetwork is the network number meaning "all networks"
	BroadcastNetwork = 0xFFFF

	// MaxInstance is the largest legal device object instance
	MaxInstance = 4194303

	// DefaultIPPort is the BACnet/IP UDP port (0xBAC0)
	DefaultIPPort = 47808
)

// Address is a BACnet device address: a datalink MAC on the local
// segment, plus an optional remote network number and station address.
type Address struct {
	MAC []byte // Datalink address (0-7 bytes, empty = broadcast)
	Net uint16 // 0 = local, 1-65534 = remote, 65535 = all networks
	Adr []byte // Station address on Net (empty = broadcast on Net)
}

// LocalBroadcast returns the broadcast address of the local network
func LocalBroadcast() Address {
	return Address{}
}

// GlobalBroadcast returns the address reaching every network
func GlobalBroadcast() Address {
	return Address{Net: BroadcastNetwork}
}

// IsBroadcast reports whether the datalink MAC is the broadcast address
func (a Address) IsBroadcast() bool {
	return len(a.MAC) == 0
}

// Equal reports whether two addresses name the same station.
// The station address only matters when a remote network is set.
func (a Address) Equal(b Address) bool {
	if !bytes.Equal(a.MAC, b.MAC) {
		return false
	}
	if a.Net != b.Net {
		return false
	}
	if a.Net == 0 {
		return true
	}
	return bytes.Equal(a.Adr, b.Adr)
}

// Clone returns a deep copy so callers may reuse receive buffers
func (a Address) Clone() Address {
	c := Address{Net: a.Net}
	if len(a.MAC) > 0 {
		c.MAC = append([]byte(nil), a.MAC...)
	}
	if len(a.Adr) > 0 {
		c.Adr = append([]byte(nil), a.Adr...)
	}
	return c
}

// String returns a debug representation of the address
func (a Address) String() string {
	mac := "broadcast"
	if len(a.MAC) > 0 {
		mac = FormatMAC(a.MAC)
	}
	if a.Net == 0 {
		return mac
	}
	adr := "broadcast"
	if len(a.Adr) > 0 {
		adr = hex.EncodeToString(a.Adr)
	}
	return fmt.Sprintf("%s net=%d adr=%s", mac, a.Net, adr)
}

// FormatMAC renders a MAC for humans. Six byte BACnet/IP addresses are
// shown as ip:port, anything else as colon separated hex pairs.
func FormatMAC(mac []byte) string {
	if len(mac) == 6 {
		port := int(mac[4])<<8 | int(mac[5])
		return fmt.Sprintf("%d.%d.%d.%d:%d", mac[0], mac[1], mac[2], mac[3], port)
	}
	return HexPairs(mac)
}

// HexPairs renders bytes as upper-case hex pairs joined by colons
func HexPairs(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}

// ParseMAC parses a --mac or --dadr argument.
//
// Accepted forms:
//
//	10.1.2.3            BACnet/IP, default port 47808
//	10.1.2.3:47809      BACnet/IP with port
//	[10.1.2.3]:47809    bracketed BACnet/IP endpoint
//	00:21:70:7e:32:bb   colon separated hex pairs (1-7 bytes)
//	05, 0a0b            bare hex (1-7 bytes)
func ParseMAC(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty address")
	}

	if mac, ok := parseIPEndpoint(s); ok {
		return mac, nil
	}

	var digits []string
	if strings.Contains(s, ":") {
		digits = strings.Split(s, ":")
	} else {
		if len(s)%2 != 0 {
			s = "0" + s
		}
		for i := 0; i < len(s); i += 2 {
			digits = append(digits, s[i:i+2])
		}
	}

	if len(digits) > MaxMACLen {
		return nil, fmt.Errorf("address %q longer than %d bytes", s, MaxMACLen)
	}

	mac := make([]byte, 0, len(digits))
	for _, d := range digits {
		if len(d) == 0 || len(d) > 2 {
			return nil, fmt.Errorf("invalid hex byte %q", d)
		}
		v, err := strconv.ParseUint(d, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", d, err)
		}
		mac = append(mac, byte(v))
	}
	return mac, nil
}

// parseIPEndpoint recognises dotted IPv4 with an optional port
func parseIPEndpoint(s string) ([]byte, bool) {
	host, portStr := s, ""
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return nil, false
		}
		host = s[1:end]
		rest := s[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return nil, false
			}
			portStr = rest[1:]
		}
	} else if strings.Count(s, ".") == 3 {
		if i := strings.LastIndex(s, ":"); i >= 0 {
			host, portStr = s[:i], s[i+1:]
		}
	} else {
		return nil, false
	}

	ip := net.ParseIP(host).To4()
	if ip == nil {
		return nil, false
	}

	port := uint64(DefaultIPPort)
	if portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, false
		}
		port = p
	}

	return IPMAC(ip, uint16(port)), true
}

// IPMAC builds the six byte BACnet/IP MAC for an IPv4 endpoint
func IPMAC(ip net.IP, port uint16) []byte {
	mac := make([]byte, 6)
	copy(mac, ip.To4())
	mac[4] = byte(port >> 8)
	mac[5] = byte(port)
	return mac
}

// MACToUDP converts a six byte BACnet/IP MAC back into a UDP address
func MACToUDP(mac []byte) (*net.UDPAddr, error) {
	if len(mac) != 6 {
		return nil, fmt.Errorf("BACnet/IP MAC must be 6 bytes, got %d", len(mac))
	}
	return &net.UDPAddr{
		IP:   net.IPv4(mac[0], mac[1], mac[2], mac[3]),
		Port: int(mac[4])<<8 | int(mac[5]),
	}, nil
}
