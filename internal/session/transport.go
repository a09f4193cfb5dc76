package session

import (
	"context"
	"time"

	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/registry"
)

// Transport moves NPDUs to and from one datalink
type Transport interface {
	// Send delivers an NPDU to dest. An empty MAC means the datalink
	// broadcast address.
	Send(dest bacnet.Address, npdu []byte) error

	// Receive waits up to timeout for one NPDU. It returns a nil slice
	// and no error when nothing arrived in time.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, bacnet.Address, error)

	// Maintenance is called about once per second with the time since
	// the previous call (foreign device renewal, heartbeats).
	Maintenance(elapsed time.Duration)

	Close() error
}

// Codec encodes requests and decodes inbound NPDUs.
// bacnet.Codec is the implementation used outside tests.
type Codec interface {
	EncodeWhoIs(dest bacnet.Address, r bacnet.InstanceRange) ([]byte, error)
	EncodeIAm(dest bacnet.Address, m bacnet.IAm) ([]byte, error)
	Decode(src bacnet.Address, npdu []byte) (bacnet.Event, error)
}

// Observer receives progress notifications from a running session.
// Any field may be nil. Callbacks run on the session's goroutine and
// must not block.
type Observer struct {
	// OnSend is called after each transmission with the running count
	OnSend func(sends int)

	// OnPeer is called for each identity reply with the registry entry
	// that holds it and what the registry did
	OnPeer func(p registry.Peer, outcome registry.Outcome)

	// OnEvent is called for every decoded event, before it is acted on
	OnEvent func(ev bacnet.Event)
}

func (o *Observer) sent(n int) {
	if o != nil && o.OnSend != nil {
		o.OnSend(n)
	}
}

func (o *Observer) peer(p registry.Peer, outcome registry.Outcome) {
	if o != nil && o.OnPeer != nil {
		o.OnPeer(p, outcome)
	}
}

func (o *Observer) event(ev bacnet.Event) {
	if o != nil && o.OnEvent != nil {
		o.OnEvent(ev)
	}
}

// Option configures a session
type Option func(*options)

type options struct {
	clock    Clock
	codec    Codec
	observer *Observer
}

func defaultOptions() options {
	return options{
		clock: SystemClock(),
		codec: bacnet.Codec{},
	}
}

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCodec replaces the BACnet codec
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithObserver attaches progress callbacks
func WithObserver(obs *Observer) Option {
	return func(o *options) { o.observer = obs }
}
