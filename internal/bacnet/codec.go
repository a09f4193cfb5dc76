package bacnet

import "fmt"

// Codec turns requests into NPDUs and inbound NPDUs into events.
// The zero value is ready to use.
type Codec struct{}

// EncodeWhoIs builds the NPDU of a Who-Is addressed to dest
func (Codec) EncodeWhoIs(dest Address, r InstanceRange) ([]byte, error) {
	apdu, err := EncodeWhoIsAPDU(r)
	if err != nil {
		return nil, err
	}
	return EncodeNPDU(dest, false, apdu)
}

// EncodeIAm builds the NPDU of an I-Am addressed to dest
func (Codec) EncodeIAm(dest Address, m IAm) ([]byte, error) {
	apdu, err := EncodeIAmAPDU(m)
	if err != nil {
		return nil, err
	}
	return EncodeNPDU(dest, false, apdu)
}

// Decode parses an NPDU received from the datalink address src.
// The returned event's source carries the remote network and station
// from the NPDU source specifier, when present.
// An error means the PDU was malformed; callers drop it.
func (Codec) Decode(src Address, data []byte) (Event, error) {
	npdu, err := DecodeNPDU(data)
	if err != nil {
		return nil, err
	}

	from := Address{MAC: append([]byte(nil), src.MAC...)}
	if npdu.Source.Net != 0 {
		from.Net = npdu.Source.Net
		from.Adr = npdu.Source.Adr
	}

	if npdu.NetworkMessage {
		return UnrecognizedEvent{Source: from, NetworkMessage: true}, nil
	}

	apdu := npdu.APDU
	if len(apdu) == 0 {
		return nil, fmt.Errorf("empty APDU")
	}

	pduType := apdu[0] & 0xF0
	switch pduType {
	case PDUTypeUnconfirmedRequest:
		if len(apdu) < 2 {
			return nil, fmt.Errorf("unconfirmed request without service choice")
		}
		if apdu[1] != ServiceIAm {
			return UnrecognizedEvent{Source: from, PDUType: pduType, Service: apdu[1]}, nil
		}
		m, err := DecodeIAm(apdu[2:])
		if err != nil {
			return nil, fmt.Errorf("I-Am: %w", err)
		}
		return IAmEvent{Source: from, IAm: m}, nil

	case PDUTypeAbort:
		if len(apdu) < 3 {
			return nil, fmt.Errorf("abort PDU too short: %d bytes", len(apdu))
		}
		return AbortEvent{
			Source:   from,
			InvokeID: apdu[1],
			Reason:   AbortReason(apdu[2]),
			Server:   apdu[0]&0x01 != 0,
		}, nil

	case PDUTypeReject:
		if len(apdu) < 3 {
			return nil, fmt.Errorf("reject PDU too short: %d bytes", len(apdu))
		}
		return RejectEvent{
			Source:   from,
			InvokeID: apdu[1],
			Reason:   RejectReason(apdu[2]),
		}, nil

	default:
		var service byte
		if len(apdu) > 1 {
			service = apdu[1]
		}
		return UnrecognizedEvent{Source: from, PDUType: pduType, Service: service}, nil
	}
}

// EncodeAbort builds an Abort NPDU. Used by tests and the hub tooling to
// exercise peers' error paths.
func EncodeAbort(dest Address, invokeID uint8, reason AbortReason, server bool) ([]byte, error) {
	first := byte(PDUTypeAbort)
	if server {
		first |= 0x01
	}
	return EncodeNPDU(dest, false, []byte{first, invokeID, byte(reason)})
}

// EncodeReject builds a Reject NPDU
func EncodeReject(dest Address, invokeID uint8, reason RejectReason) ([]byte, error) {
	return EncodeNPDU(dest, false, []byte{PDUTypeReject, invokeID, byte(reason)})
}
