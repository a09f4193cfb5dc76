package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/datalink"
	"github.com/muurk/bacscan/internal/logging"
)

const (
	connectWait = 10 * time.Second
	writeWait   = 10 * time.Second
)

// node is one connected BACnet/SC node
type node struct {
	conn    *websocket.Conn
	vmac    datalink.VMAC
	uuid    uuid.UUID
	remote  string
	writeMu sync.Mutex
}

func (n *node) send(msg *datalink.SCMessage) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	if err := n.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return n.conn.WriteMessage(websocket.BinaryMessage, msg.Encode())
}

// Hub relays Encapsulated-NPDU messages between the nodes connected to
// it. It implements http.Handler; each connection is served on the
// calling goroutine.
type Hub struct {
	vmac     datalink.VMAC
	uuid     uuid.UUID
	upgrader websocket.Upgrader

	mu     sync.Mutex
	nodes  map[datalink.VMAC]*node
	wg     sync.WaitGroup
	closed bool
}

// New creates a hub with a random VMAC and UUID
func New() (*Hub, error) {
	vmac, err := datalink.RandomVMAC()
	if err != nil {
		return nil, err
	}
	return &Hub{
		vmac: vmac,
		uuid: uuid.New(),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{datalink.HubSubprotocol},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
		nodes: make(map[datalink.VMAC]*node),
	}, nil
}

// VMAC returns the hub's own virtual MAC
func (h *Hub) VMAC() datalink.VMAC {
	return h.vmac
}

// NodeCount returns the number of connected nodes
func (h *Hub) NodeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

// ServeHTTP upgrades the request and serves the node until it leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "hub is shutting down", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	defer conn.Close()

	if conn.Subprotocol() != datalink.HubSubprotocol {
		logging.Warn("Rejecting connection without the hub subprotocol",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Strings("offered", websocket.Subprotocols(r)),
		)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "subprotocol "+datalink.HubSubprotocol+" required"),
			time.Now().Add(time.Second))
		return
	}

	n, err := h.accept(conn, r.RemoteAddr)
	if err != nil {
		logging.Warn("Connect-Request failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	if n == nil {
		return
	}
	defer h.remove(n)

	h.serve(n)
}

// accept waits for Connect-Request and registers the node. It returns
// nil without an error when the request was refused with a NAK.
func (h *Hub) accept(conn *websocket.Conn, remote string) (*node, error) {
	if err := conn.SetReadDeadline(time.Now().Add(connectWait)); err != nil {
		return nil, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	n := &node{conn: conn, remote: remote}

	msg, err := datalink.DecodeSCMessage(data)
	if err != nil {
		return nil, err
	}
	if msg.Function != datalink.SCConnectRequest {
		_ = n.send(nak(msg, datalink.ErrorCodeUnexpectedData, "expected Connect-Request"))
		return nil, nil
	}
	info, err := datalink.DecodeConnectInfo(msg.Payload)
	if err != nil {
		_ = n.send(nak(msg, datalink.ErrorCodeUnexpectedData, err.Error()))
		return nil, nil
	}
	n.vmac, n.uuid = info.VMAC, info.UUID

	h.mu.Lock()
	existing, taken := h.nodes[n.vmac]
	switch {
	case n.vmac == h.vmac || n.vmac == datalink.BroadcastVMAC:
		h.mu.Unlock()
		_ = n.send(nak(msg, datalink.ErrorCodeDuplicateVMAC, "VMAC not usable"))
		logging.LogNode(remote, n.vmac.String(), "refused_reserved_vmac")
		return nil, nil
	case taken && existing.uuid != n.uuid:
		h.mu.Unlock()
		_ = n.send(nak(msg, datalink.ErrorCodeDuplicateVMAC, "VMAC in use"))
		logging.LogNode(remote, n.vmac.String(), "refused_duplicate_vmac")
		return nil, nil
	case taken:
		// Same device reconnecting; the old connection is stale
		logging.LogNode(existing.remote, n.vmac.String(), "replaced")
		_ = existing.conn.Close()
	}
	h.nodes[n.vmac] = n
	h.mu.Unlock()

	accept := &datalink.SCMessage{
		Function:  datalink.SCConnectAccept,
		MessageID: msg.MessageID,
		Payload: datalink.ConnectInfo{
			VMAC:    h.vmac,
			UUID:    h.uuid,
			MaxBVLC: datalink.DefaultMaxBVLC,
			MaxNPDU: datalink.DefaultMaxNPDU,
		}.Encode(),
	}
	if err := n.send(accept); err != nil {
		h.remove(n)
		return nil, err
	}

	logging.LogNode(remote, n.vmac.String(), "connected")
	return n, nil
}

func (h *Hub) serve(n *node) {
	for {
		_, data, err := n.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("Node read failed", zap.String("vmac", n.vmac.String()), zap.Error(err))
			}
			return
		}

		msg, err := datalink.DecodeSCMessage(data)
		if err != nil {
			logging.Debug("Dropping BVLC-SC message", zap.String("vmac", n.vmac.String()), zap.Error(err))
			continue
		}

		switch msg.Function {
		case datalink.SCEncapsulatedNPDU:
			h.route(n, msg)
		case datalink.SCHeartbeatRequest:
			_ = n.send(&datalink.SCMessage{Function: datalink.SCHeartbeatACK, MessageID: msg.MessageID})
		case datalink.SCDisconnectRequest:
			_ = n.send(&datalink.SCMessage{Function: datalink.SCDisconnectACK, MessageID: msg.MessageID})
			return
		case datalink.SCHeartbeatACK, datalink.SCDisconnectACK, datalink.SCResult:
		default:
			_ = n.send(nak(msg, datalink.ErrorCodeUnexpectedData, "function not supported by hub"))
		}
	}
}

// route forwards an Encapsulated-NPDU. The originating VMAC is set to the
// sender; a unicast loses its destination VMAC on the way out.
func (h *Hub) route(from *node, msg *datalink.SCMessage) {
	origin := from.vmac
	out := &datalink.SCMessage{
		Function:    datalink.SCEncapsulatedNPDU,
		MessageID:   msg.MessageID,
		Originating: &origin,
		Payload:     msg.Payload,
	}

	if msg.Destination == nil || *msg.Destination == datalink.BroadcastVMAC {
		out.Destination = &datalink.BroadcastVMAC
		for _, n := range h.snapshot() {
			if n == from {
				continue
			}
			if err := n.send(out); err != nil {
				logging.Debug("Broadcast delivery failed", zap.String("vmac", n.vmac.String()), zap.Error(err))
			}
		}
		return
	}

	h.mu.Lock()
	to, ok := h.nodes[*msg.Destination]
	h.mu.Unlock()
	if !ok {
		logging.Debug("No node for destination VMAC", zap.String("vmac", msg.Destination.String()))
		return
	}
	if err := to.send(out); err != nil {
		logging.Debug("Unicast delivery failed", zap.String("vmac", to.vmac.String()), zap.Error(err))
	}
}

func (h *Hub) snapshot() []*node {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*node, 0, len(h.nodes))
	for _, n := range h.nodes {
		out = append(out, n)
	}
	return out
}

func (h *Hub) remove(n *node) {
	h.mu.Lock()
	if h.nodes[n.vmac] == n {
		delete(h.nodes, n.vmac)
	}
	h.mu.Unlock()
	logging.LogNode(n.remote, n.vmac.String(), "disconnected")
}

// Close disconnects every node and waits for their handlers to return
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, n := range h.nodes {
		_ = n.send(&datalink.SCMessage{Function: datalink.SCDisconnectRequest})
		_ = n.conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func nak(req *datalink.SCMessage, code uint16, details string) *datalink.SCMessage {
	return &datalink.SCMessage{
		Function:  datalink.SCResult,
		MessageID: req.MessageID,
		Payload: datalink.SCResultInfo{
			ForFunction: req.Function,
			NAK:         true,
			ErrorClass:  datalink.ErrorClassCommunication,
			ErrorCode:   code,
			Details:     details,
		}.Encode(),
	}
}
