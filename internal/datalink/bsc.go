package datalink

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/logging"
)

const (
	scConnectWait  = 10 * time.Second
	scWriteWait    = 10 * time.Second
	scInboundQueue = 64

	// DefaultHeartbeat is the idle time after which a heartbeat is sent
	DefaultHeartbeat = 300 * time.Second
)

// SCConfig configures a BACnet/SC hub connection
type SCConfig struct {
	HubURI    string
	TLSConfig *tls.Config // nil uses the system roots for wss
	Heartbeat time.Duration
	UUID      uuid.UUID // Zero value generates a random device UUID
	VMAC      *VMAC     // nil generates a random VMAC
}

type scFrame struct {
	npdu []byte
	src  bacnet.Address
}

// SC is a BACnet/SC node connected to one hub. Reads happen on an
// internal goroutine because a websocket read cannot resume after its
// deadline passes; Receive takes frames from a channel.
type SC struct {
	conn      *websocket.Conn
	vmac      VMAC
	uuid      uuid.UUID
	hub       ConnectInfo
	heartbeat time.Duration

	writeMu sync.Mutex
	msgID   atomic.Uint32
	lastRx  atomic.Int64 // unix nanoseconds

	frames  chan scFrame
	readErr chan error
	done    chan struct{}
	closed  sync.Once
}

// DialSC connects to the hub and completes the Connect-Request exchange
func DialSC(ctx context.Context, cfg SCConfig) (*SC, error) {
	s := &SC{
		uuid:      cfg.UUID,
		heartbeat: cfg.Heartbeat,
		frames:    make(chan scFrame, scInboundQueue),
		readErr:   make(chan error, 1),
		done:      make(chan struct{}),
	}
	if s.uuid == uuid.Nil {
		s.uuid = uuid.New()
	}
	if cfg.VMAC != nil {
		s.vmac = *cfg.VMAC
	} else {
		v, err := RandomVMAC()
		if err != nil {
			return nil, err
		}
		s.vmac = v
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeat
	}

	dialer := websocket.Dialer{
		Subprotocols:     []string{HubSubprotocol},
		TLSClientConfig:  cfg.TLSConfig,
		HandshakeTimeout: scConnectWait,
		Proxy:            websocket.DefaultDialer.Proxy,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.HubURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hub %s: %w", cfg.HubURI, err)
	}
	s.conn = conn

	if err := s.connect(); err != nil {
		conn.Close()
		return nil, err
	}
	s.touch()

	go s.readLoop()

	logging.Info("BACnet/SC datalink connected",
		zap.String("hub", cfg.HubURI),
		zap.Stringer("vmac", s.vmac),
		zap.Stringer("hub_vmac", s.hub.VMAC),
		zap.String("uuid", s.uuid.String()),
	)
	return s, nil
}

// connect sends Connect-Request and waits for Connect-Accept
func (s *SC) connect() error {
	req := &SCMessage{
		Function:  SCConnectRequest,
		MessageID: s.nextID(),
		Payload: ConnectInfo{
			VMAC:    s.vmac,
			UUID:    s.uuid,
			MaxBVLC: DefaultMaxBVLC,
			MaxNPDU: DefaultMaxNPDU,
		}.Encode(),
	}
	if err := s.write(req); err != nil {
		return fmt.Errorf("send Connect-Request: %w", err)
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(scConnectWait)); err != nil {
		return err
	}
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("waiting for Connect-Accept: %w", err)
		}
		msg, err := DecodeSCMessage(data)
		if err != nil {
			return fmt.Errorf("invalid hub response: %w", err)
		}

		switch msg.Function {
		case SCConnectAccept:
			info, err := DecodeConnectInfo(msg.Payload)
			if err != nil {
				return fmt.Errorf("invalid Connect-Accept: %w", err)
			}
			s.hub = info
			return nil
		case SCResult:
			res, err := DecodeSCResult(msg.Payload)
			if err != nil {
				return fmt.Errorf("invalid BVLC-Result: %w", err)
			}
			if res.NAK {
				return fmt.Errorf("hub refused connection: %w", res)
			}
		default:
			logging.Debug("Ignoring message before Connect-Accept", zap.Uint8("function", msg.Function))
		}
	}
}

// VMAC returns this node's virtual MAC
func (s *SC) VMAC() VMAC {
	return s.vmac
}

// Send encapsulates npdu for the hub. An empty MAC is the SC broadcast.
func (s *SC) Send(dest bacnet.Address, npdu []byte) error {
	to := BroadcastVMAC
	if !dest.IsBroadcast() {
		if len(dest.MAC) != VMACLen {
			return fmt.Errorf("BACnet/SC destination must be a %d byte VMAC, got %d bytes", VMACLen, len(dest.MAC))
		}
		copy(to[:], dest.MAC)
	}

	msg := &SCMessage{
		Function:    SCEncapsulatedNPDU,
		MessageID:   s.nextID(),
		Destination: &to,
		Payload:     npdu,
	}
	return s.write(msg)
}

// Receive waits up to timeout for one NPDU relayed by the hub
func (s *SC) Receive(ctx context.Context, timeout time.Duration) ([]byte, bacnet.Address, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-s.frames:
		return f.npdu, f.src, nil
	case err := <-s.readErr:
		// Keep the error visible to later calls
		s.readErr <- err
		return nil, bacnet.Address{}, err
	case <-timer.C:
		return nil, bacnet.Address{}, nil
	case <-ctx.Done():
		return nil, bacnet.Address{}, ctx.Err()
	}
}

// Maintenance sends a heartbeat once the connection has been idle for
// the heartbeat interval
func (s *SC) Maintenance(elapsed time.Duration) {
	idle := time.Since(time.Unix(0, s.lastRx.Load()))
	if idle < s.heartbeat {
		return
	}
	msg := &SCMessage{Function: SCHeartbeatRequest, MessageID: s.nextID()}
	if err := s.write(msg); err != nil {
		logging.Warn("Heartbeat failed", zap.Error(err))
		return
	}
	logging.Debug("Heartbeat sent", zap.Duration("idle", idle))
}

// Close sends Disconnect-Request and closes the connection
func (s *SC) Close() error {
	var err error
	s.closed.Do(func() {
		close(s.done)
		_ = s.write(&SCMessage{Function: SCDisconnectRequest, MessageID: s.nextID()})
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *SC) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.readErr <- fmt.Errorf("hub connection lost: %w", err)
			}
			return
		}
		s.touch()

		msg, err := DecodeSCMessage(data)
		if err != nil {
			logging.Debug("Dropping BVLC-SC message", zap.Error(err))
			continue
		}

		switch msg.Function {
		case SCEncapsulatedNPDU:
			src := bacnet.Address{}
			if msg.Originating != nil {
				src.MAC = append([]byte(nil), msg.Originating[:]...)
			}
			select {
			case s.frames <- scFrame{npdu: copyBytes(msg.Payload), src: src}:
			default:
				logging.Warn("Inbound queue full, dropping NPDU", zap.Stringer("src", src))
			}
		case SCHeartbeatRequest:
			_ = s.write(&SCMessage{Function: SCHeartbeatACK, MessageID: msg.MessageID})
		case SCHeartbeatACK:
			logging.Debug("Heartbeat acknowledged")
		case SCDisconnectRequest:
			_ = s.write(&SCMessage{Function: SCDisconnectACK, MessageID: msg.MessageID})
			s.readErr <- errors.New("hub requested disconnect")
			return
		case SCResult:
			if res, err := DecodeSCResult(msg.Payload); err == nil && res.NAK {
				logging.Warn("Hub returned NAK", zap.String("error", res.Error()))
			}
		default:
			logging.Debug("Ignoring BVLC-SC function", zap.Uint8("function", msg.Function))
		}
	}
}

func (s *SC) write(msg *SCMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data := msg.Encode()
	logging.LogRawBytes("BVLC-SC send", data)
	if err := s.conn.SetWriteDeadline(time.Now().Add(scWriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *SC) nextID() uint16 {
	return uint16(s.msgID.Add(1))
}

func (s *SC) touch() {
	s.lastRx.Store(time.Now().UnixNano())
}

// RandomVMAC returns a random locally administered VMAC (the "Random-48"
// format: low nibble of the first octet is 0x2)
func RandomVMAC() (VMAC, error) {
	var v VMAC
	if _, err := rand.Read(v[:]); err != nil {
		return v, fmt.Errorf("generate VMAC: %w", err)
	}
	v[0] = (v[0] & 0xF0) | 0x02
	return v, nil
}
