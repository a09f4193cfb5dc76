package datalink_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/datalink"
	"github.com/muurk/bacscan/internal/hub"
	"github.com/muurk/bacscan/internal/registry"
	"github.com/muurk/bacscan/internal/session"
)

func startHub(t *testing.T) (*hub.Hub, string) {
	t.Helper()
	h, err := hub.New()
	if err != nil {
		t.Fatalf("hub.New() error = %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, uri string, cfg datalink.SCConfig) *datalink.SC {
	t.Helper()
	cfg.HubURI = uri
	sc, err := datalink.DialSC(context.Background(), cfg)
	if err != nil {
		t.Fatalf("DialSC() error = %v", err)
	}
	t.Cleanup(func() { sc.Close() })
	return sc
}

func TestSC_BroadcastAndUnicast(t *testing.T) {
	_, uri := startHub(t)
	a := dial(t, uri, datalink.SCConfig{})
	b := dial(t, uri, datalink.SCConfig{})

	npdu := []byte{0x01, 0x20, 0xFF, 0xFF, 0x00, 0xFF, 0x10, 0x08}
	if err := a.Send(bacnet.GlobalBroadcast(), npdu); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, src, err := b.Receive(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(got, npdu) {
		t.Errorf("Receive() = % x, want % x", got, npdu)
	}
	av := a.VMAC()
	if !bytes.Equal(src.MAC, av[:]) {
		t.Errorf("source MAC = % x, want % x", src.MAC, av[:])
	}

	// Reply to the source address as reported
	reply := []byte{0x01, 0x00, 0x10, 0x00}
	if err := b.Send(src, reply); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, _, err = a.Receive(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(got, reply) {
		t.Errorf("Receive() = % x, want % x", got, reply)
	}
}

func TestSC_ReceiveTimeout(t *testing.T) {
	_, uri := startHub(t)
	a := dial(t, uri, datalink.SCConfig{})

	data, _, err := a.Receive(context.Background(), 30*time.Millisecond)
	if err != nil || data != nil {
		t.Errorf("Receive() = % x, %v, want nil, nil", data, err)
	}
}

func TestSC_InvalidDestination(t *testing.T) {
	_, uri := startHub(t)
	a := dial(t, uri, datalink.SCConfig{})

	err := a.Send(bacnet.Address{MAC: []byte{0xC0, 0xA8, 0x01, 0x14}}, []byte{0x01, 0x00})
	if err == nil {
		t.Error("Send() with a 4 byte MAC error = nil, want error")
	}
}

func TestSC_DuplicateVMAC(t *testing.T) {
	_, uri := startHub(t)
	v := datalink.VMAC{0x02, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	dial(t, uri, datalink.SCConfig{VMAC: &v, UUID: uuid.New()})

	_, err := datalink.DialSC(context.Background(), datalink.SCConfig{HubURI: uri, VMAC: &v, UUID: uuid.New()})
	var res datalink.SCResultInfo
	if !errors.As(err, &res) {
		t.Fatalf("DialSC() error = %v, want SCResultInfo", err)
	}
	if res.ErrorCode != datalink.ErrorCodeDuplicateVMAC {
		t.Errorf("ErrorCode = %d, want %d", res.ErrorCode, datalink.ErrorCodeDuplicateVMAC)
	}
}

func TestSC_HubGoesAway(t *testing.T) {
	h, uri := startHub(t)
	a := dial(t, uri, datalink.SCConfig{})

	h.Close()
	_, _, err := a.Receive(context.Background(), 2*time.Second)
	if err == nil {
		t.Fatal("Receive() error = nil after hub closed")
	}
	// The failure sticks
	if _, _, err2 := a.Receive(context.Background(), 10*time.Millisecond); err2 == nil {
		t.Error("second Receive() error = nil, want the same failure")
	}
}

func TestSC_Heartbeat(t *testing.T) {
	_, uri := startHub(t)
	a := dial(t, uri, datalink.SCConfig{Heartbeat: time.Millisecond})

	time.Sleep(5 * time.Millisecond)
	a.Maintenance(time.Second)

	// The ACK is consumed by the reader; the link stays usable
	data, _, err := a.Receive(context.Background(), 100*time.Millisecond)
	if err != nil || data != nil {
		t.Errorf("Receive() = % x, %v, want nil, nil", data, err)
	}
}

func TestSC_DiscoverySession(t *testing.T) {
	_, uri := startHub(t)
	client := dial(t, uri, datalink.SCConfig{})
	device := dial(t, uri, datalink.SCConfig{})

	// The device answers any Who-Is with an I-Am
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		codec := bacnet.Codec{}
		for ctx.Err() == nil {
			data, src, err := device.Receive(ctx, 50*time.Millisecond)
			if err != nil || data == nil {
				continue
			}
			reply, err := codec.EncodeIAm(src, bacnet.IAm{DeviceID: 1234, MaxAPDU: 1476, Segmentation: 3, VendorID: 260})
			if err != nil {
				return
			}
			_ = device.Send(src, reply)
		}
	}()

	d := session.NewDiscovery(client, session.DiscoveryConfig{
		Destination: bacnet.GlobalBroadcast(),
		Timeout:     300 * time.Millisecond,
		PollDelay:   20 * time.Millisecond,
	})
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Registry.Len() != 1 {
		t.Fatalf("Registry.Len() = %d, want 1", res.Registry.Len())
	}
	peer := res.Registry.At(0)
	dv := device.VMAC()
	want := registry.Peer{DeviceID: 1234, MaxAPDU: 1476, Address: bacnet.Address{MAC: dv[:]}}
	if peer.DeviceID != want.DeviceID || peer.MaxAPDU != want.MaxAPDU || !peer.Address.Equal(want.Address) {
		t.Errorf("peer = %+v, want %+v", peer, want)
	}
}
