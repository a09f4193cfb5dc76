package bacnet

import "fmt"

// Event is an inbound PDU after decoding. The set of implementations is
// closed: IAmEvent, AbortEvent, RejectEvent and UnrecognizedEvent.
type Event interface {
	From() Address
	String() string
	event()
}

// IAmEvent is a device announcing its identity
type IAmEvent struct {
	Source Address
	IAm    IAm
}

func (e IAmEvent) From() Address { return e.Source }
func (IAmEvent) event()          {}

func (e IAmEvent) String() string {
	return fmt.Sprintf("I-Am from %s: %s", e.Source, e.IAm)
}

// AbortEvent is a peer aborting a transaction
type AbortEvent struct {
	Source   Address
	InvokeID uint8
	Reason   AbortReason
	Server   bool // Sent by the server side of the transaction
}

func (e AbortEvent) From() Address { return e.Source }
func (AbortEvent) event()          {}

func (e AbortEvent) String() string {
	return fmt.Sprintf("Abort from %s: invoke=%d reason=%s", e.Source, e.InvokeID, e.Reason)
}

// RejectEvent is a peer rejecting a request
type RejectEvent struct {
	Source   Address
	InvokeID uint8
	Reason   RejectReason
}

func (e RejectEvent) From() Address { return e.Source }
func (RejectEvent) event()          {}

func (e RejectEvent) String() string {
	return fmt.Sprintf("Reject from %s: invoke=%d reason=%s", e.Source, e.InvokeID, e.Reason)
}

// UnrecognizedEvent is any well-formed PDU this package does not act on
type UnrecognizedEvent struct {
	Source         Address
	PDUType        byte
	Service        byte
	NetworkMessage bool
}

func (e UnrecognizedEvent) From() Address { return e.Source }
func (UnrecognizedEvent) event()          {}

func (e UnrecognizedEvent) String() string {
	if e.NetworkMessage {
		return fmt.Sprintf("network layer message from %s", e.Source)
	}
	return fmt.Sprintf("unhandled PDU type=0x%02x service=%d from %s", e.PDUType, e.Service, e.Source)
}
