package session

import (
	"fmt"

	"github.com/muurk/bacscan/internal/bacnet"
)

// ConfigError reports a session setting that cannot be used. It is
// returned before anything is sent.
type ConfigError struct {
	Field string // Setting name, e.g. "device-instance-min"
	Err   error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying validation error
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ProtocolErrorKind tells aborts and rejects apart
type ProtocolErrorKind int

const (
	// KindAbort is a BACnet Abort PDU
	KindAbort ProtocolErrorKind = iota
	// KindReject is a BACnet Reject PDU
	KindReject
)

// String returns the label used in user facing messages
func (k ProtocolErrorKind) String() string {
	switch k {
	case KindAbort:
		return "Abort"
	case KindReject:
		return "Reject"
	default:
		return fmt.Sprintf("ProtocolErrorKind(%d)", int(k))
	}
}

// ProtocolError is an abort or reject received from a peer. It ends the
// session but is not a failure of the program.
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Reason string
	Source bacnet.Address
	Event  bacnet.Event
}

// Error returns the message printed to the user, e.g.
// "BACnet Reject: Unrecognized Service"
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("BACnet %s: %s", e.Kind, e.Reason)
}

// protocolError maps abort and reject events to a ProtocolError and
// returns nil for anything else
func protocolError(ev bacnet.Event) *ProtocolError {
	switch e := ev.(type) {
	case bacnet.AbortEvent:
		return &ProtocolError{Kind: KindAbort, Reason: e.Reason.String(), Source: e.Source, Event: ev}
	case bacnet.RejectEvent:
		return &ProtocolError{Kind: KindReject, Reason: e.Reason.String(), Source: e.Source, Event: ev}
	default:
		return nil
	}
}
