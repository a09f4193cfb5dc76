package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/logging"
	"github.com/muurk/bacscan/internal/registry"
)

const (
	// DefaultPollDelay bounds each receive poll
	DefaultPollDelay = 100 * time.Millisecond

	// DefaultTimeout is the APDU timeout (3 s) times the APDU retry
	// count (3) of a default configured stack
	DefaultTimeout = 9 * time.Second

	// MaintenanceInterval is how often Transport.Maintenance runs
	MaintenanceInterval = time.Second
)

// DiscoveryConfig fixes everything a discovery session needs before it
// starts
type DiscoveryConfig struct {
	Destination   bacnet.Address
	Range         bacnet.InstanceRange
	Retries       int           // Retransmissions after the first send
	RepeatForever bool          // Retransmit until cancelled
	Timeout       time.Duration // Wait before each retransmission; 0 = DefaultTimeout
	PollDelay     time.Duration // Longest single receive; 0 = DefaultPollDelay
}

// Validate checks the configuration without touching the network
func (c DiscoveryConfig) Validate() error {
	if c.Range.Limited {
		if c.Range.Low > bacnet.MaxInstance {
			return &ConfigError{Field: "device-instance-min", Err: c.Range.Validate()}
		}
		if c.Range.High > bacnet.MaxInstance {
			return &ConfigError{Field: "device-instance-max", Err: c.Range.Validate()}
		}
	}
	if c.Retries < 0 {
		return &ConfigError{Field: "retry", Err: fmt.Errorf("retry=%d - must not be negative", c.Retries)}
	}
	if c.Timeout < 0 || c.PollDelay < 0 {
		return &ConfigError{Field: "timeout", Err: fmt.Errorf("timeout and delay must not be negative")}
	}
	return nil
}

func (c DiscoveryConfig) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c DiscoveryConfig) pollDelay() time.Duration {
	if c.PollDelay == 0 {
		return DefaultPollDelay
	}
	return c.PollDelay
}

// Result is what a discovery session leaves behind
type Result struct {
	Registry *registry.Registry
	Sends    int
	Err      *ProtocolError // Abort or reject that ended the session, if any
}

// Discovery sends Who-Is requests and collects the I-Am replies.
// A Discovery runs once.
type Discovery struct {
	transport Transport
	cfg       DiscoveryConfig
	opts      options
}

// NewDiscovery creates a discovery session over transport
func NewDiscovery(transport Transport, cfg DiscoveryConfig, opts ...Option) *Discovery {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Discovery{transport: transport, cfg: cfg, opts: o}
}

// Run executes the session until the retry budget is spent, a peer
// aborts or rejects, or ctx is cancelled. The registry is returned in
// every case, including on transport failure.
//
// Run returns an error only for an invalid configuration (nothing is
// sent) or a failing transport.
func (d *Discovery) Run(ctx context.Context) (*Result, error) {
	if err := d.cfg.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Registry: registry.New()}

	pdu, err := d.opts.codec.EncodeWhoIs(d.cfg.Destination, d.cfg.Range)
	if err != nil {
		return res, fmt.Errorf("failed to encode Who-Is: %w", err)
	}

	logging.Debug("Starting discovery",
		zap.Stringer("dest", d.cfg.Destination),
		zap.Stringer("range", d.cfg.Range),
		zap.Int("retries", d.cfg.Retries),
		zap.Bool("repeat", d.cfg.RepeatForever),
		zap.Duration("timeout", d.cfg.timeout()),
	)

	remaining := d.cfg.Retries
	if err := d.send(res, pdu); err != nil {
		return res, err
	}

	requestTimer := NewTimer(d.opts.clock, d.cfg.timeout())
	maintenanceTimer := NewTimer(d.opts.clock, MaintenanceInterval)

	for {
		if ctx.Err() != nil {
			logging.Debug("Discovery cancelled", zap.Int("sends", res.Sends))
			return res, nil
		}

		data, src, err := d.transport.Receive(ctx, d.cfg.pollDelay())
		if err != nil {
			if ctx.Err() != nil {
				return res, nil
			}
			return res, fmt.Errorf("receive failed: %w", err)
		}
		if len(data) > 0 {
			d.handle(res, src, data)
		}
		if res.Err != nil {
			return res, nil
		}

		if maintenanceTimer.Expired() {
			d.transport.Maintenance(maintenanceTimer.Interval())
			maintenanceTimer.Reset()
		}

		if !requestTimer.Expired() {
			continue
		}
		if !d.cfg.RepeatForever && remaining == 0 {
			return res, nil
		}
		if !d.cfg.RepeatForever {
			remaining--
		}
		if err := d.send(res, pdu); err != nil {
			return res, err
		}
		requestTimer.Reset()
	}
}

func (d *Discovery) send(res *Result, pdu []byte) error {
	if err := d.transport.Send(d.cfg.Destination, pdu); err != nil {
		return fmt.Errorf("failed to send Who-Is: %w", err)
	}
	res.Sends++
	logging.LogSend("who-is", d.cfg.Destination.String(), res.Sends, pdu)
	d.opts.observer.sent(res.Sends)
	return nil
}

// handle decodes one inbound NPDU and applies it to the result
func (d *Discovery) handle(res *Result, src bacnet.Address, data []byte) {
	ev, err := d.opts.codec.Decode(src, data)
	if err != nil {
		logging.Debug("Dropping undecodable PDU",
			zap.Stringer("src", src),
			zap.Error(err),
		)
		return
	}
	d.opts.observer.event(ev)

	switch e := ev.(type) {
	case bacnet.IAmEvent:
		idx, outcome := res.Registry.Add(e.IAm.DeviceID, e.IAm.MaxAPDU, e.Source)
		logging.LogPeer(e.IAm.DeviceID, e.Source.String(), e.IAm.MaxAPDU, e.IAm.VendorID, outcome.String())
		d.opts.observer.peer(res.Registry.At(idx), outcome)
	case bacnet.AbortEvent, bacnet.RejectEvent:
		res.Err = protocolError(e)
		logging.Warn("Peer ended discovery",
			zap.Stringer("src", e.From()),
			zap.String("error", res.Err.Error()),
		)
	case bacnet.UnrecognizedEvent:
		logging.Debug("Ignoring PDU", zap.Stringer("event", e))
	}
}
