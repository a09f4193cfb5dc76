package datalink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/logging"
)

// maxBVLLSize is the largest BACnet/IP datagram (1497 octet MPDU plus headers)
const maxBVLLSize = 1506

// BIPConfig configures a BACnet/IP datalink
type BIPConfig struct {
	Interface string // Interface name; empty picks the first usable IPv4 interface
	Port      int    // UDP port; 0 picks an ephemeral port
	ListenIP  net.IP // Bind address; nil binds all addresses so broadcasts arrive
	Broadcast net.IP // Overrides the broadcast address derived from the interface

	BBMD    *net.UDPAddr // Register as a foreign device with this BBMD
	BBMDTTL time.Duration
}

// BIP is a BACnet/IP datalink (Annex J). It is used by one session at a
// time and is not safe for concurrent Receive calls.
type BIP struct {
	conn      *net.UDPConn
	pc        *ipv4.PacketConn
	local     *net.UDPAddr
	broadcast *net.UDPAddr
	ifIndex   int

	bbmd          *net.UDPAddr
	bbmdTTL       time.Duration
	sinceRegister time.Duration

	buf []byte
}

// OpenBIP binds the UDP socket and, when a BBMD is configured, sends the
// first foreign device registration
func OpenBIP(cfg BIPConfig) (*BIP, error) {
	if cfg.BBMD != nil && cfg.BBMDTTL < time.Second {
		return nil, fmt.Errorf("foreign device time to live %v is shorter than 1s", cfg.BBMDTTL)
	}
	ifIP, bcast, ifIndex, err := resolveInterface(cfg.Interface)
	if err != nil && cfg.ListenIP == nil {
		return nil, err
	}
	if cfg.ListenIP != nil {
		ifIP = cfg.ListenIP
	}
	if cfg.Broadcast != nil {
		bcast = cfg.Broadcast
	}
	if bcast == nil {
		bcast = net.IPv4bcast
	}
	// Only a named interface restricts which interface traffic may arrive on
	if cfg.Interface == "" {
		ifIndex = 0
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: cfg.ListenIP, Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind BACnet/IP port %d: %w", cfg.Port, err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
		// Not available on every platform; only the interface filter is lost
		logging.Debug("IPv4 control messages unavailable", zap.Error(err))
	}

	b := &BIP{
		conn:      conn,
		pc:        pc,
		local:     &net.UDPAddr{IP: ifIP.To4(), Port: port},
		broadcast: &net.UDPAddr{IP: bcast.To4(), Port: port},
		ifIndex:   ifIndex,
		bbmd:      cfg.BBMD,
		bbmdTTL:   cfg.BBMDTTL,
		buf:       make([]byte, maxBVLLSize),
	}

	logging.Info("BACnet/IP datalink open",
		zap.Stringer("local", b.local),
		zap.Stringer("broadcast", b.broadcast),
		zap.String("interface", cfg.Interface),
	)

	if b.bbmd != nil {
		if err := b.register(); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return b, nil
}

// LocalAddr returns the address peers see as our MAC
func (b *BIP) LocalAddr() *net.UDPAddr {
	return b.local
}

// Send wraps npdu in a BVLL and transmits it. A broadcast goes through
// the BBMD when registered as a foreign device.
func (b *BIP) Send(dest bacnet.Address, npdu []byte) error {
	var (
		frame []byte
		to    *net.UDPAddr
	)

	switch {
	case !dest.IsBroadcast():
		addr, err := bacnet.MACToUDP(dest.MAC)
		if err != nil {
			return fmt.Errorf("invalid BACnet/IP destination: %w", err)
		}
		frame, to = encodeBVLL(bvlcOriginalUnicastNPDU, npdu), addr
	case b.bbmd != nil:
		frame, to = encodeBVLL(bvlcDistributeBroadcast, npdu), b.bbmd
	default:
		frame, to = encodeBVLL(bvlcOriginalBroadcastNPDU, npdu), b.broadcast
	}

	logging.LogRawBytes("BVLL send "+to.String(), frame)
	if _, err := b.pc.WriteTo(frame, nil, to); err != nil {
		return fmt.Errorf("write to %s: %w", to, err)
	}
	return nil
}

// Receive waits up to timeout for one NPDU
func (b *BIP) Receive(ctx context.Context, timeout time.Duration) ([]byte, bacnet.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, bacnet.Address{}, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := b.pc.SetReadDeadline(deadline); err != nil {
		return nil, bacnet.Address{}, err
	}

	for {
		n, cm, src, err := b.pc.ReadFrom(b.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, bacnet.Address{}, nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, bacnet.Address{}, nil
			}
			return nil, bacnet.Address{}, fmt.Errorf("read: %w", err)
		}

		from, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		if b.ifIndex != 0 && cm != nil && cm.IfIndex != 0 && cm.IfIndex != b.ifIndex {
			continue
		}
		// Our own broadcasts come back to us
		if from.IP.Equal(b.local.IP) && from.Port == b.local.Port {
			continue
		}

		data, addr, ok := b.handleFrame(b.buf[:n], from)
		if ok {
			return data, addr, nil
		}
		// Control traffic consumed; report an empty poll
		return nil, bacnet.Address{}, nil
	}
}

// handleFrame decodes one datagram. It returns false for frames that
// carry no NPDU.
func (b *BIP) handleFrame(frame []byte, from *net.UDPAddr) ([]byte, bacnet.Address, bool) {
	logging.LogRawBytes("BVLL received "+from.String(), frame)

	f, err := decodeBVLL(frame)
	if err != nil {
		logging.Debug("Dropping datagram", zap.Stringer("src", from), zap.Error(err))
		return nil, bacnet.Address{}, false
	}

	switch f.Function {
	case bvlcOriginalUnicastNPDU, bvlcOriginalBroadcastNPDU:
		mac := bacnet.IPMAC(from.IP, uint16(from.Port))
		return copyBytes(f.NPDU), bacnet.Address{MAC: mac}, true
	case bvlcForwardedNPDU:
		if b.isLocal(f.Origin) {
			return nil, bacnet.Address{}, false
		}
		return copyBytes(f.NPDU), bacnet.Address{MAC: copyBytes(f.Origin)}, true
	case bvlcResult:
		if f.ResultCode == bvlcResultSuccess {
			logging.Debug("BBMD accepted registration", zap.Stringer("bbmd", from))
		} else {
			logging.Warn("BBMD refused request",
				zap.Stringer("bbmd", from),
				zap.String("result", bvlcResultText(f.ResultCode)),
			)
		}
	default:
		logging.Debug("Ignoring BVLL function", zap.Uint8("function", f.Function))
	}
	return nil, bacnet.Address{}, false
}

func (b *BIP) isLocal(mac []byte) bool {
	addr, err := bacnet.MACToUDP(mac)
	if err != nil {
		return false
	}
	return addr.IP.Equal(b.local.IP) && addr.Port == b.local.Port
}

// Maintenance renews the foreign device registration once its time to
// live has passed
func (b *BIP) Maintenance(elapsed time.Duration) {
	if b.bbmd == nil {
		return
	}
	b.sinceRegister += elapsed
	if b.sinceRegister < b.bbmdTTL {
		return
	}
	if err := b.register(); err != nil {
		logging.Warn("Foreign device renewal failed", zap.Error(err))
	}
}

func (b *BIP) register() error {
	ttl := b.bbmdTTL / time.Second
	if ttl > 0xFFFF {
		ttl = 0xFFFF
	}
	frame := encodeRegisterForeignDevice(uint16(ttl))
	if _, err := b.pc.WriteTo(frame, nil, b.bbmd); err != nil {
		return fmt.Errorf("register foreign device with %s: %w", b.bbmd, err)
	}
	b.sinceRegister = 0
	logging.Debug("Registered as foreign device",
		zap.Stringer("bbmd", b.bbmd),
		zap.Duration("ttl", b.bbmdTTL),
	)
	return nil
}

// Close releases the socket
func (b *BIP) Close() error {
	return b.conn.Close()
}

// resolveInterface finds the IPv4 address, directed broadcast address
// and index of the named interface, or of the first usable one
func resolveInterface(name string) (net.IP, net.IP, int, error) {
	var ifaces []net.Interface
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("interface %q: %w", name, err)
		}
		ifaces = []net.Interface{*iface}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return nil, nil, 0, fmt.Errorf("list interfaces: %w", err)
		}
		for _, iface := range all {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			ifaces = append(ifaces, iface)
		}
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil {
				continue
			}
			return ip, directedBroadcast(ip, ipnet.Mask), iface.Index, nil
		}
	}

	if name != "" {
		return nil, nil, 0, fmt.Errorf("interface %q has no IPv4 address", name)
	}
	return nil, nil, 0, fmt.Errorf("no IPv4 interface found")
}

func directedBroadcast(ip net.IP, mask net.IPMask) net.IP {
	ip = ip.To4()
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	out := make(net.IP, net.IPv4len)
	for i := range out {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
