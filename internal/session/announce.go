package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/bacscan/internal/bacnet"
	"github.com/muurk/bacscan/internal/logging"
)

// AnnouncementConfig fixes the I-Am to send and how often
type AnnouncementConfig struct {
	Destination   bacnet.Address
	IAm           bacnet.IAm
	Retries       int           // Additional sends after the first
	RepeatForever bool          // Send until cancelled
	PollDelay     time.Duration // Receive window after each send; 0 = DefaultPollDelay
}

// Validate checks the announced identity
func (c AnnouncementConfig) Validate() error {
	if c.IAm.DeviceID > bacnet.MaxInstance {
		return &ConfigError{
			Field: "device-instance",
			Err:   fmt.Errorf("device-instance=%d - not greater than %d", c.IAm.DeviceID, bacnet.MaxInstance),
		}
	}
	if c.Retries < 0 {
		return &ConfigError{Field: "retry", Err: fmt.Errorf("retry=%d - must not be negative", c.Retries)}
	}
	return nil
}

// AnnounceResult is what an announcement session leaves behind
type AnnounceResult struct {
	Sends int
	Err   *ProtocolError
}

// Announcement broadcasts or directs this program's own I-Am
type Announcement struct {
	transport Transport
	cfg       AnnouncementConfig
	opts      options
}

// NewAnnouncement creates an announcement session over transport
func NewAnnouncement(transport Transport, cfg AnnouncementConfig, opts ...Option) *Announcement {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Announcement{transport: transport, cfg: cfg, opts: o}
}

// Run sends the I-Am at least once. Between repeated sends it polls
// once for an abort or reject aimed at the announcement and stops on
// the first one.
func (a *Announcement) Run(ctx context.Context) (*AnnounceResult, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	pdu, err := a.opts.codec.EncodeIAm(a.cfg.Destination, a.cfg.IAm)
	if err != nil {
		return nil, fmt.Errorf("failed to encode I-Am: %w", err)
	}

	delay := a.cfg.PollDelay
	if delay == 0 {
		delay = DefaultPollDelay
	}

	res := &AnnounceResult{}
	remaining := a.cfg.Retries
	maintenanceTimer := NewTimer(a.opts.clock, MaintenanceInterval)

	for {
		if err := a.transport.Send(a.cfg.Destination, pdu); err != nil {
			return res, fmt.Errorf("failed to send I-Am: %w", err)
		}
		res.Sends++
		logging.LogSend("i-am", a.cfg.Destination.String(), res.Sends, pdu)
		a.opts.observer.sent(res.Sends)

		if !a.cfg.RepeatForever && remaining == 0 {
			return res, nil
		}

		data, src, err := a.transport.Receive(ctx, delay)
		if err != nil {
			if ctx.Err() != nil {
				return res, nil
			}
			return res, fmt.Errorf("receive failed: %w", err)
		}
		if len(data) > 0 {
			a.handle(res, src, data)
		}
		if res.Err != nil || ctx.Err() != nil {
			return res, nil
		}

		if maintenanceTimer.Expired() {
			a.transport.Maintenance(maintenanceTimer.Interval())
			maintenanceTimer.Reset()
		}

		if !a.cfg.RepeatForever {
			remaining--
		}
	}
}

func (a *Announcement) handle(res *AnnounceResult, src bacnet.Address, data []byte) {
	ev, err := a.opts.codec.Decode(src, data)
	if err != nil {
		logging.Debug("Dropping undecodable PDU", zap.Stringer("src", src), zap.Error(err))
		return
	}
	a.opts.observer.event(ev)

	if perr := protocolError(ev); perr != nil {
		res.Err = perr
		logging.Warn("Peer answered announcement",
			zap.Stringer("src", ev.From()),
			zap.String("error", perr.Error()),
		)
	}
}
