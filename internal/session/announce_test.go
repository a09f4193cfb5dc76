package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/muurk/bacscan/internal/bacnet"
)

var testIAm = bacnet.IAm{
	DeviceID:     4194303,
	MaxAPDU:      1476,
	Segmentation: bacnet.SegmentationNone,
	VendorID:     260,
}

func TestAnnouncement_SendCount(t *testing.T) {
	tests := []struct {
		name         string
		retries      int
		wantSends    int
		wantReceives int
	}{
		{"single shot", 0, 1, 0},
		{"one retry", 1, 2, 1},
		{"two retries", 2, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			tr := newFakeTransport(clock)

			res, err := NewAnnouncement(tr, AnnouncementConfig{
				Destination: bacnet.LocalBroadcast(),
				IAm:         testIAm,
				Retries:     tt.retries,
			}, WithClock(clock)).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if res.Sends != tt.wantSends {
				t.Errorf("Sends = %d, want %d", res.Sends, tt.wantSends)
			}
			if tr.receives != tt.wantReceives {
				t.Errorf("receives = %d, want %d", tr.receives, tt.wantReceives)
			}
			if res.Err != nil {
				t.Errorf("Err = %v, want nil", res.Err)
			}
		})
	}
}

func TestAnnouncement_EncodesIdentity(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport(clock)
	dest := bacnet.Address{MAC: []byte{0x05}, Net: 2001, Adr: []byte{0x21}}

	if _, err := NewAnnouncement(tr, AnnouncementConfig{Destination: dest, IAm: testIAm}, WithClock(clock)).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(tr.sent))
	}

	ev, err := bacnet.Codec{}.Decode(tr.sent[0].dest, tr.sent[0].npdu)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	iam, ok := ev.(bacnet.IAmEvent)
	if !ok {
		t.Fatalf("Decode() = %T, want IAmEvent", ev)
	}
	if iam.IAm != testIAm {
		t.Errorf("announced %v, want %v", iam.IAm, testIAm)
	}
	if !tr.sent[0].dest.Equal(dest) {
		t.Errorf("dest = %v, want %v", tr.sent[0].dest, dest)
	}
}

func TestAnnouncement_StopsOnAbort(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport(clock)
	tr.inbox = []inbound{
		{afterSends: 2, src: ipAddr(40), data: abortFrame(9)},
	}

	res, err := NewAnnouncement(tr, AnnouncementConfig{
		IAm:     testIAm,
		Retries: 10,
	}, WithClock(clock)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Sends != 2 {
		t.Errorf("Sends = %d, want 2", res.Sends)
	}
	if res.Err == nil || res.Err.Kind != KindAbort {
		t.Fatalf("Err = %v, want abort", res.Err)
	}
	if got := res.Err.Error(); got != "BACnet Abort: Out of Resources" {
		t.Errorf("Err.Error() = %q", got)
	}
}

func TestAnnouncement_IgnoresOtherTraffic(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport(clock)
	tr.inbox = []inbound{
		{afterSends: 1, src: ipAddr(40), data: iAmFrame(5, 50)},
		{afterSends: 2, src: ipAddr(41), data: []byte{0x02, 0x00}},
	}

	res, err := NewAnnouncement(tr, AnnouncementConfig{IAm: testIAm, Retries: 2}, WithClock(clock)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Sends != 3 || res.Err != nil {
		t.Errorf("Run() = {Sends: %d, Err: %v}, want {3, nil}", res.Sends, res.Err)
	}
}

func TestAnnouncement_RepeatUntilCancelled(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport(clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := &Observer{OnSend: func(n int) {
		if n == 25 {
			cancel()
		}
	}}

	res, err := NewAnnouncement(tr, AnnouncementConfig{
		IAm:           testIAm,
		RepeatForever: true,
		PollDelay:     100 * time.Millisecond,
	}, WithClock(clock), WithObserver(obs)).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Sends != 25 {
		t.Errorf("Sends = %d, want 25", res.Sends)
	}
	// 24 polls of 100ms each cross the 1s maintenance boundary twice
	if len(tr.maintenance) != 2 {
		t.Errorf("maintenance calls = %d, want 2", len(tr.maintenance))
	}
}

func TestAnnouncement_InvalidInstance(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport(clock)
	m := testIAm
	m.DeviceID = bacnet.MaxInstance + 1

	_, err := NewAnnouncement(tr, AnnouncementConfig{IAm: m}, WithClock(clock)).Run(context.Background())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Run() error = %v, want *ConfigError", err)
	}
	if len(tr.sent) != 0 {
		t.Errorf("sent %d frames before validation", len(tr.sent))
	}
}
