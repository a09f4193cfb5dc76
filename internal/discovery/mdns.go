package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type BACnet/SC hubs advertise
	ServiceType = "_bacnet-sc-hub._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultScanTimeout bounds a hub lookup
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is assumed when an advertisement carries no port
	DefaultPort = 443
)

// Scanner looks for BACnet/SC hubs over mDNS
type Scanner struct {
	// Timeout is the maximum time to wait for advertisements
	Timeout time.Duration
}

// NewScanner creates a scanner with the default timeout
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForHubs collects every hub advertised before the timeout
func (s *Scanner) ScanForHubs(ctx context.Context) ([]*Hub, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu   sync.Mutex
		hubs []*Hub
		done = make(chan struct{})
	)

	go func() {
		defer close(done)
		for entry := range entries {
			if hub := parseServiceEntry(entry); hub != nil {
				mu.Lock()
				hubs = append(hubs, hub)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// The resolver closes entries once the context ends
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]*Hub(nil), hubs...), nil
}

// FindHub returns the first hub that answers
func (s *Scanner) FindHub(ctx context.Context) (*Hub, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Hub, 1)

	go func() {
		for entry := range entries {
			if hub := parseServiceEntry(entry); hub != nil {
				select {
				case found <- hub:
				default:
				}
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case hub := <-found:
		return hub, nil
	case <-ctx.Done():
		// A hub may have been queued just as the timeout fired
		select {
		case hub := <-found:
			return hub, nil
		default:
		}
		return nil, fmt.Errorf("no BACnet/SC hub found within %v", s.Timeout)
	}
}

// parseServiceEntry converts an advertisement to a Hub.
// Returns nil when the entry has no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Hub {
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Hub{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Advertisement is a registered mDNS service; Shutdown withdraws it
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise announces a hub listening on port. path and tls end up in the
// TXT record so that FindHub can rebuild the URI.
func Advertise(instance string, port int, path string, tls bool) (*Advertisement, error) {
	txt := []string{
		"path=" + path,
		"tls=" + boolFlag(tls),
	}
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// FindHubURI is a convenience wrapper returning the URI of the first hub
func FindHubURI(ctx context.Context, timeout time.Duration) (string, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	hub, err := scanner.FindHub(ctx)
	if err != nil {
		return "", err
	}
	return hub.URI(), nil
}

// hostPort joins an IP and port, bracketing IPv6
func hostPort(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
