package discovery

import (
	"fmt"
	"strings"
	"time"
)

// Hub is a BACnet/SC hub found over mDNS
type Hub struct {
	// Instance is the advertised service instance name
	Instance string

	// Hostname is the mDNS host name (e.g., "labhub.local.")
	Hostname string

	// IP is the first advertised address, IPv4 preferred
	IP string

	// Port is the WebSocket listener port
	Port int

	// Metadata holds the TXT record ("path=/", "tls=1")
	Metadata map[string]string

	// DiscoveredAt is when the advertisement arrived
	DiscoveredAt time.Time
}

// String returns a human-readable description
func (h *Hub) String() string {
	return fmt.Sprintf("BACnet/SC hub %q at %s", h.Instance, hostPort(h.IP, h.Port))
}

// TLS reports whether the hub expects wss. Hubs that do not say are
// assumed to use TLS.
func (h *Hub) TLS() bool {
	return h.GetMetadata("tls") != "0"
}

// URI returns the WebSocket URI to dial
func (h *Hub) URI() string {
	scheme := "wss"
	if !h.TLS() {
		scheme = "ws"
	}
	path := h.GetMetadata("path")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s", scheme, hostPort(h.IP, h.Port), path)
}

// GetMetadata retrieves a TXT value by key, or "" when missing
func (h *Hub) GetMetadata(key string) string {
	if h.Metadata == nil {
		return ""
	}
	return h.Metadata[key]
}
