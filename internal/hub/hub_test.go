package hub

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/muurk/bacscan/internal/datalink"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type testNode struct {
	t    *testing.T
	conn *websocket.Conn
	vmac datalink.VMAC
}

func dialNode(t *testing.T, url string, vmac datalink.VMAC, id uuid.UUID) (*testNode, *datalink.SCMessage) {
	t.Helper()

	dialer := websocket.Dialer{Subprotocols: []string{datalink.HubSubprotocol}}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	n := &testNode{t: t, conn: conn, vmac: vmac}
	n.write(&datalink.SCMessage{
		Function:  datalink.SCConnectRequest,
		MessageID: 1,
		Payload: datalink.ConnectInfo{
			VMAC:    vmac,
			UUID:    id,
			MaxBVLC: datalink.DefaultMaxBVLC,
			MaxNPDU: datalink.DefaultMaxNPDU,
		}.Encode(),
	})
	return n, n.read()
}

func (n *testNode) write(msg *datalink.SCMessage) {
	n.t.Helper()
	if err := n.conn.WriteMessage(websocket.BinaryMessage, msg.Encode()); err != nil {
		n.t.Fatalf("WriteMessage() error = %v", err)
	}
}

func (n *testNode) read() *datalink.SCMessage {
	n.t.Helper()
	_ = n.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := n.conn.ReadMessage()
	if err != nil {
		n.t.Fatalf("ReadMessage() error = %v", err)
	}
	msg, err := datalink.DecodeSCMessage(data)
	if err != nil {
		n.t.Fatalf("DecodeSCMessage() error = %v", err)
	}
	return msg
}

// expectSilence fails if a message arrives within a short window
func (n *testNode) expectSilence() {
	n.t.Helper()
	_ = n.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, data, err := n.conn.ReadMessage()
	if err == nil {
		n.t.Fatalf("unexpected message % x", data)
	}
	var ne interface{ Timeout() bool }
	if !errors.As(err, &ne) || !ne.Timeout() {
		n.t.Fatalf("ReadMessage() error = %v, want timeout", err)
	}
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func vmac(last byte) datalink.VMAC {
	return datalink.VMAC{0x02, 0, 0, 0, 0, last}
}

func waitNodes(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.NodeCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("NodeCount() = %d, want %d", h.NodeCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_ConnectAccept(t *testing.T) {
	h, srv := newTestHub(t)

	_, reply := dialNode(t, wsURL(srv), vmac(1), uuid.New())
	if reply.Function != datalink.SCConnectAccept {
		t.Fatalf("reply function = 0x%02x, want Connect-Accept", reply.Function)
	}
	if reply.MessageID != 1 {
		t.Errorf("reply MessageID = %d, want 1", reply.MessageID)
	}
	info, err := datalink.DecodeConnectInfo(reply.Payload)
	if err != nil {
		t.Fatalf("DecodeConnectInfo() error = %v", err)
	}
	if info.VMAC != h.VMAC() {
		t.Errorf("accept VMAC = %v, want %v", info.VMAC, h.VMAC())
	}
	waitNodes(t, h, 1)
}

func TestHub_DuplicateVMAC(t *testing.T) {
	h, srv := newTestHub(t)

	dialNode(t, wsURL(srv), vmac(1), uuid.New())
	_, reply := dialNode(t, wsURL(srv), vmac(1), uuid.New())

	if reply.Function != datalink.SCResult {
		t.Fatalf("reply function = 0x%02x, want BVLC-Result", reply.Function)
	}
	res, err := datalink.DecodeSCResult(reply.Payload)
	if err != nil {
		t.Fatalf("DecodeSCResult() error = %v", err)
	}
	if !res.NAK || res.ErrorCode != datalink.ErrorCodeDuplicateVMAC {
		t.Errorf("result = %+v, want duplicate VMAC NAK", res)
	}
	if res.ForFunction != datalink.SCConnectRequest {
		t.Errorf("ForFunction = 0x%02x, want Connect-Request", res.ForFunction)
	}
	waitNodes(t, h, 1)
}

func TestHub_ReconnectSameUUID(t *testing.T) {
	h, srv := newTestHub(t)
	id := uuid.New()

	dialNode(t, wsURL(srv), vmac(1), id)
	_, reply := dialNode(t, wsURL(srv), vmac(1), id)
	if reply.Function != datalink.SCConnectAccept {
		t.Fatalf("reply function = 0x%02x, want Connect-Accept", reply.Function)
	}
	waitNodes(t, h, 1)
}

func TestHub_RejectsBroadcastVMAC(t *testing.T) {
	_, srv := newTestHub(t)

	_, reply := dialNode(t, wsURL(srv), datalink.BroadcastVMAC, uuid.New())
	if reply.Function != datalink.SCResult {
		t.Fatalf("reply function = 0x%02x, want BVLC-Result", reply.Function)
	}
}

func TestHub_BroadcastRelay(t *testing.T) {
	h, srv := newTestHub(t)

	a, _ := dialNode(t, wsURL(srv), vmac(1), uuid.New())
	b, _ := dialNode(t, wsURL(srv), vmac(2), uuid.New())
	c, _ := dialNode(t, wsURL(srv), vmac(3), uuid.New())
	waitNodes(t, h, 3)

	npdu := []byte{0x01, 0x20, 0xFF, 0xFF, 0x00, 0xFF, 0x10, 0x08}
	a.write(&datalink.SCMessage{
		Function:    datalink.SCEncapsulatedNPDU,
		MessageID:   7,
		Destination: &datalink.BroadcastVMAC,
		Payload:     npdu,
	})

	for _, n := range []*testNode{b, c} {
		msg := n.read()
		if msg.Function != datalink.SCEncapsulatedNPDU {
			t.Fatalf("function = 0x%02x, want Encapsulated-NPDU", msg.Function)
		}
		if msg.Originating == nil || *msg.Originating != a.vmac {
			t.Errorf("Originating = %v, want %v", msg.Originating, a.vmac)
		}
		if !bytes.Equal(msg.Payload, npdu) {
			t.Errorf("Payload = % x, want % x", msg.Payload, npdu)
		}
	}
	a.expectSilence()
}

func TestHub_UnicastRelay(t *testing.T) {
	h, srv := newTestHub(t)

	a, _ := dialNode(t, wsURL(srv), vmac(1), uuid.New())
	b, _ := dialNode(t, wsURL(srv), vmac(2), uuid.New())
	c, _ := dialNode(t, wsURL(srv), vmac(3), uuid.New())
	waitNodes(t, h, 3)

	dest := b.vmac
	a.write(&datalink.SCMessage{
		Function:    datalink.SCEncapsulatedNPDU,
		MessageID:   9,
		Destination: &dest,
		Payload:     []byte{0x01, 0x00, 0x10, 0x00},
	})

	msg := b.read()
	if msg.Originating == nil || *msg.Originating != a.vmac {
		t.Errorf("Originating = %v, want %v", msg.Originating, a.vmac)
	}
	if msg.Destination != nil {
		t.Errorf("Destination = %v, want nil on a relayed unicast", msg.Destination)
	}
	c.expectSilence()
}

func TestHub_Heartbeat(t *testing.T) {
	_, srv := newTestHub(t)

	a, _ := dialNode(t, wsURL(srv), vmac(1), uuid.New())
	a.write(&datalink.SCMessage{Function: datalink.SCHeartbeatRequest, MessageID: 42})

	msg := a.read()
	if msg.Function != datalink.SCHeartbeatACK || msg.MessageID != 42 {
		t.Errorf("reply = 0x%02x id %d, want Heartbeat-ACK id 42", msg.Function, msg.MessageID)
	}
}

func TestHub_Disconnect(t *testing.T) {
	h, srv := newTestHub(t)

	a, _ := dialNode(t, wsURL(srv), vmac(1), uuid.New())
	waitNodes(t, h, 1)

	a.write(&datalink.SCMessage{Function: datalink.SCDisconnectRequest, MessageID: 5})
	if msg := a.read(); msg.Function != datalink.SCDisconnectACK {
		t.Errorf("reply function = 0x%02x, want Disconnect-ACK", msg.Function)
	}
	waitNodes(t, h, 0)
}

func TestHub_RequiresSubprotocol(t *testing.T) {
	h, srv := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseProtocolError) {
		t.Errorf("ReadMessage() error = %v, want protocol error close", err)
	}
	if h.NodeCount() != 0 {
		t.Errorf("NodeCount() = %d, want 0", h.NodeCount())
	}
}

func TestServer_TLS(t *testing.T) {
	srv, err := NewServer(Config{Listen: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	if !strings.HasPrefix(srv.URI(), "wss://127.0.0.1:") {
		t.Errorf("URI() = %v, want wss://127.0.0.1:<port>/", srv.URI())
	}

	dialer := websocket.Dialer{
		Subprotocols:    []string{datalink.HubSubprotocol},
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS13},
	}
	conn, _, err := dialer.Dial(srv.URI(), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	state, ok := conn.UnderlyingConn().(*tls.Conn)
	if !ok {
		t.Fatal("connection is not TLS")
	}
	if v := state.ConnectionState().Version; v != tls.VersionTLS13 {
		t.Errorf("TLS version = %x, want TLS 1.3", v)
	}
	conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
}

func TestGenerateSelfSigned(t *testing.T) {
	cert, err := GenerateSelfSigned([]string{"hub.local", "10.0.0.1", ""}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	if len(cert.Certificate.DNSNames) != 1 || cert.Certificate.DNSNames[0] != "hub.local" {
		t.Errorf("DNSNames = %v, want [hub.local]", cert.Certificate.DNSNames)
	}
	if len(cert.Certificate.IPAddresses) != 1 || cert.Certificate.IPAddresses[0].String() != "10.0.0.1" {
		t.Errorf("IPAddresses = %v, want [10.0.0.1]", cert.Certificate.IPAddresses)
	}
	if _, err := NewTLSConfigFromMemory(cert.CertPEM, cert.KeyPEM); err != nil {
		t.Errorf("NewTLSConfigFromMemory() error = %v", err)
	}
}

func TestNewTLSConfig_MissingFile(t *testing.T) {
	_, err := NewTLSConfig("/nonexistent/hub.pem", "/nonexistent/hub.key")
	var certErr *CertificateError
	if !errors.As(err, &certErr) {
		t.Fatalf("NewTLSConfig() error = %v, want *CertificateError", err)
	}
	if certErr.Path != "/nonexistent/hub.pem" {
		t.Errorf("CertificateError.Path = %v, want /nonexistent/hub.pem", certErr.Path)
	}
}
