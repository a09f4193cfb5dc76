package bacnet

import (
	"encoding/binary"
	"fmt"
)

// NPDU constants (ASHRAE 135 clause 6.2)
const (
	NPDUVersion = 0x01

	npduNetworkMessage = 0x80 // Bit 7: network layer message
	npduDNETPresent    = 0x20 // Bit 5: destination specifier present
	npduSNETPresent    = 0x08 // Bit 3: source specifier present
	npduExpectingReply = 0x04 // Bit 2: data expecting reply
	npduPriorityMask   = 0x03 // Bits 0-1: network priority

	// DefaultHopCount is used for every routed request we originate
	DefaultHopCount = 255
)

// NPDU is a decoded network layer header
type NPDU struct {
	Control        byte
	Dest           Address // Net/Adr only; MAC is a datalink concern
	Source         Address // Net/Adr only
	HopCount       byte
	NetworkMessage bool
	ExpectingReply bool
	Priority       byte
	APDU           []byte // Remaining application layer bytes
}

// EncodeNPDU prefixes an APDU with a network header addressed to dest.
// A remote destination (Net != 0) adds DNET/DLEN/DADR and a hop count.
func EncodeNPDU(dest Address, expectingReply bool, apdu []byte) ([]byte, error) {
	if len(dest.Adr) > 255 {
		return nil, fmt.Errorf("destination address too long: %d bytes", len(dest.Adr))
	}

	buf := make([]byte, 0, 2+4+len(dest.Adr)+1+len(apdu))
	control := byte(0)
	if dest.Net != 0 {
		control |= npduDNETPresent
	}
	if expectingReply {
		control |= npduExpectingReply
	}
	buf = append(buf, NPDUVersion, control)

	if dest.Net != 0 {
		buf = binary.BigEndian.AppendUint16(buf, dest.Net)
		// A global or remote broadcast carries DLEN = 0
		if dest.Net == BroadcastNetwork {
			buf = append(buf, 0)
		} else {
			buf = append(buf, byte(len(dest.Adr)))
			buf = append(buf, dest.Adr...)
		}
		buf = append(buf, DefaultHopCount)
	}

	return append(buf, apdu...), nil
}

// DecodeNPDU parses a network layer header and returns the remaining APDU
func DecodeNPDU(data []byte) (*NPDU, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("NPDU too short: %d bytes (minimum 2)", len(data))
	}
	if data[0] != NPDUVersion {
		return nil, fmt.Errorf("invalid NPDU version: 0x%02x (expected 0x%02x)", data[0], NPDUVersion)
	}

	n := &NPDU{
		Control:        data[1],
		NetworkMessage: data[1]&npduNetworkMessage != 0,
		ExpectingReply: data[1]&npduExpectingReply != 0,
		Priority:       data[1] & npduPriorityMask,
	}
	offset := 2

	if n.Control&npduDNETPresent != 0 {
		net, adr, next, err := decodeSpecifier(data, offset)
		if err != nil {
			return nil, fmt.Errorf("destination specifier: %w", err)
		}
		n.Dest = Address{Net: net, Adr: adr}
		offset = next
	}

	if n.Control&npduSNETPresent != 0 {
		net, adr, next, err := decodeSpecifier(data, offset)
		if err != nil {
			return nil, fmt.Errorf("source specifier: %w", err)
		}
		// A source is always one station, and its SADR must fit an Address
		if len(adr) == 0 || len(adr) > MaxMACLen {
			return nil, fmt.Errorf("source specifier: SLEN %d outside 1..%d", len(adr), MaxMACLen)
		}
		n.Source = Address{Net: net, Adr: adr}
		offset = next
	}

	if n.Control&npduDNETPresent != 0 {
		if offset >= len(data) {
			return nil, fmt.Errorf("missing hop count")
		}
		n.HopCount = data[offset]
		offset++
	}

	if n.NetworkMessage {
		// Network layer messages carry a type byte instead of an APDU
		if offset >= len(data) {
			return nil, fmt.Errorf("missing network message type")
		}
	}

	n.APDU = data[offset:]
	return n, nil
}

// decodeSpecifier reads NET(2) LEN(1) ADR(LEN) starting at offset
func decodeSpecifier(data []byte, offset int) (uint16, []byte, int, error) {
	if offset+3 > len(data) {
		return 0, nil, 0, fmt.Errorf("truncated at offset %d", offset)
	}
	net := binary.BigEndian.Uint16(data[offset : offset+2])
	length := int(data[offset+2])
	offset += 3
	if offset+length > len(data) {
		return 0, nil, 0, fmt.Errorf("address length %d exceeds remaining %d bytes", length, len(data)-offset)
	}
	var adr []byte
	if length > 0 {
		adr = append([]byte(nil), data[offset:offset+length]...)
	}
	return net, adr, offset + length, nil
}
