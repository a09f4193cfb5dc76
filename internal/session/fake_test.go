package session

import (
	"context"
	"errors"
	"time"

	"github.com/muurk/bacscan/internal/bacnet"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type sentFrame struct {
	dest bacnet.Address
	npdu []byte
}

// inbound is delivered by the first Receive after afterSends sends
type inbound struct {
	afterSends int
	src        bacnet.Address
	data       []byte
}

// fakeTransport advances the fake clock by the full poll timeout on every
// empty receive, so timers expire after a predictable number of polls
type fakeTransport struct {
	clock       *fakeClock
	sent        []sentFrame
	inbox       []inbound
	receives    int
	maintenance []time.Duration
	recvErr     error
	sendErr     error
	maxReceives int
}

var errTooManyReceives = errors.New("fake transport: receive limit reached")

func newFakeTransport(clock *fakeClock) *fakeTransport {
	return &fakeTransport{clock: clock, maxReceives: 10000}
}

func (f *fakeTransport) Send(dest bacnet.Address, npdu []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentFrame{dest: dest.Clone(), npdu: append([]byte(nil), npdu...)})
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, bacnet.Address, error) {
	f.receives++
	if f.receives > f.maxReceives {
		return nil, bacnet.Address{}, errTooManyReceives
	}
	if f.recvErr != nil {
		return nil, bacnet.Address{}, f.recvErr
	}
	if len(f.inbox) > 0 && len(f.sent) >= f.inbox[0].afterSends {
		in := f.inbox[0]
		f.inbox = f.inbox[1:]
		f.clock.Advance(time.Millisecond)
		return in.data, in.src, nil
	}
	f.clock.Advance(timeout)
	return nil, bacnet.Address{}, nil
}

func (f *fakeTransport) Maintenance(elapsed time.Duration) {
	f.maintenance = append(f.maintenance, elapsed)
}

func (f *fakeTransport) Close() error { return nil }

func ipAddr(last byte) bacnet.Address {
	return bacnet.Address{MAC: []byte{192, 168, 1, last, 0xBA, 0xC0}}
}

func iAmFrame(id uint32, maxAPDU uint32) []byte {
	npdu, err := bacnet.Codec{}.EncodeIAm(bacnet.LocalBroadcast(), bacnet.IAm{
		DeviceID:     id,
		MaxAPDU:      maxAPDU,
		Segmentation: bacnet.SegmentationNone,
		VendorID:     260,
	})
	if err != nil {
		panic(err)
	}
	return npdu
}

func rejectFrame(reason bacnet.RejectReason) []byte {
	npdu, err := bacnet.EncodeReject(bacnet.LocalBroadcast(), 1, reason)
	if err != nil {
		panic(err)
	}
	return npdu
}

func abortFrame(reason bacnet.AbortReason) []byte {
	npdu, err := bacnet.EncodeAbort(bacnet.LocalBroadcast(), 1, reason, true)
	if err != nil {
		panic(err)
	}
	return npdu
}
