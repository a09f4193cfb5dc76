package datalink

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// BACnet Secure Connect virtual link control (Annex AB)
const (
	// HubSubprotocol is the WebSocket subprotocol of node to hub connections
	HubSubprotocol = "hub.bsc.bacnet.org"

	// VMACLen is the length of a BACnet/SC virtual MAC address
	VMACLen = 6

	// DefaultMaxBVLC and DefaultMaxNPDU are announced when connecting
	DefaultMaxBVLC = 1600
	DefaultMaxNPDU = 1497
)

// BVLC-SC functions
const (
	SCResult               byte = 0x00
	SCEncapsulatedNPDU     byte = 0x01
	SCAddressResolution    byte = 0x02
	SCAddressResolutionACK byte = 0x03
	SCAdvertisement        byte = 0x04
	SCAdvertisementSolicit byte = 0x05
	SCConnectRequest       byte = 0x06
	SCConnectAccept        byte = 0x07
	SCDisconnectRequest    byte = 0x08
	SCDisconnectACK        byte = 0x09
	SCHeartbeatRequest     byte = 0x0A
	SCHeartbeatACK         byte = 0x0B
	SCProprietaryMessage   byte = 0x0C
)

// Error class and codes carried in a BVLC-Result NAK
const (
	ErrorClassCommunication = 7
	ErrorCodeUnexpectedData = 0x8A
	ErrorCodeDuplicateVMAC  = 0x8C
)

const (
	scFlagDataOptions        byte = 0x01
	scFlagDestinationOptions byte = 0x02
	scFlagDestinationVMAC    byte = 0x04
	scFlagOriginatingVMAC    byte = 0x08

	scHeaderOptionMoreFollows byte = 0x80
	scHeaderOptionHasData     byte = 0x20

	scConnectPayloadLen = VMACLen + 16 + 2 + 2

	scResultACK              = 0x00
	scResultNAK              = 0x01
	scErrorHeaderMarkerNoHdr = 0x00
)

// VMAC is a BACnet/SC virtual MAC address
type VMAC [VMACLen]byte

// BroadcastVMAC addresses every node connected to the hub
var BroadcastVMAC = VMAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// String renders the VMAC as colon separated hex
func (v VMAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", v[0], v[1], v[2], v[3], v[4], v[5])
}

// SCMessage is one BVLC-SC message
type SCMessage struct {
	Function    byte
	MessageID   uint16
	Originating *VMAC
	Destination *VMAC
	Payload     []byte
}

// ConnectInfo is the payload of Connect-Request and Connect-Accept
type ConnectInfo struct {
	VMAC    VMAC
	UUID    uuid.UUID
	MaxBVLC uint16
	MaxNPDU uint16
}

// SCResultInfo is the payload of a BVLC-Result
type SCResultInfo struct {
	ForFunction byte
	NAK         bool
	ErrorClass  uint16
	ErrorCode   uint16
	Details     string
}

// Encode serializes the message
func (m *SCMessage) Encode() []byte {
	flags := byte(0)
	size := 4 + len(m.Payload)
	if m.Originating != nil {
		flags |= scFlagOriginatingVMAC
		size += VMACLen
	}
	if m.Destination != nil {
		flags |= scFlagDestinationVMAC
		size += VMACLen
	}

	buf := make([]byte, 4, size)
	buf[0] = m.Function
	buf[1] = flags
	binary.BigEndian.PutUint16(buf[2:], m.MessageID)
	if m.Originating != nil {
		buf = append(buf, m.Originating[:]...)
	}
	if m.Destination != nil {
		buf = append(buf, m.Destination[:]...)
	}
	return append(buf, m.Payload...)
}

// DecodeSCMessage parses one BVLC-SC message. Header options are
// skipped; this client does not act on any of them.
func DecodeSCMessage(data []byte) (*SCMessage, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("BVLC-SC message too short: %d bytes", len(data))
	}
	m := &SCMessage{
		Function:  data[0],
		MessageID: binary.BigEndian.Uint16(data[2:4]),
	}
	flags := data[1]
	offset := 4

	readVMAC := func() (*VMAC, error) {
		if len(data) < offset+VMACLen {
			return nil, fmt.Errorf("truncated VMAC at offset %d", offset)
		}
		var v VMAC
		copy(v[:], data[offset:offset+VMACLen])
		offset += VMACLen
		return &v, nil
	}

	var err error
	if flags&scFlagOriginatingVMAC != 0 {
		if m.Originating, err = readVMAC(); err != nil {
			return nil, err
		}
	}
	if flags&scFlagDestinationVMAC != 0 {
		if m.Destination, err = readVMAC(); err != nil {
			return nil, err
		}
	}
	if flags&scFlagDestinationOptions != 0 {
		if offset, err = skipHeaderOptions(data, offset); err != nil {
			return nil, fmt.Errorf("destination options: %w", err)
		}
	}
	if flags&scFlagDataOptions != 0 {
		if offset, err = skipHeaderOptions(data, offset); err != nil {
			return nil, fmt.Errorf("data options: %w", err)
		}
	}

	m.Payload = data[offset:]
	return m, nil
}

// skipHeaderOptions walks a header option list and returns the offset
// following it
func skipHeaderOptions(data []byte, offset int) (int, error) {
	for {
		if offset >= len(data) {
			return 0, fmt.Errorf("truncated header option")
		}
		marker := data[offset]
		offset++
		if marker&scHeaderOptionHasData != 0 {
			if len(data) < offset+2 {
				return 0, fmt.Errorf("truncated header option length")
			}
			n := int(binary.BigEndian.Uint16(data[offset:]))
			offset += 2 + n
			if offset > len(data) {
				return 0, fmt.Errorf("header option data overruns message")
			}
		}
		if marker&scHeaderOptionMoreFollows == 0 {
			return offset, nil
		}
	}
}

// Encode serializes a Connect-Request or Connect-Accept payload
func (c ConnectInfo) Encode() []byte {
	buf := make([]byte, 0, scConnectPayloadLen)
	buf = append(buf, c.VMAC[:]...)
	buf = append(buf, c.UUID[:]...)
	buf = binary.BigEndian.AppendUint16(buf, c.MaxBVLC)
	return binary.BigEndian.AppendUint16(buf, c.MaxNPDU)
}

// DecodeConnectInfo parses a Connect-Request or Connect-Accept payload
func DecodeConnectInfo(payload []byte) (ConnectInfo, error) {
	if len(payload) < scConnectPayloadLen {
		return ConnectInfo{}, fmt.Errorf("connect payload too short: %d bytes", len(payload))
	}
	var c ConnectInfo
	copy(c.VMAC[:], payload[:VMACLen])
	copy(c.UUID[:], payload[VMACLen:VMACLen+16])
	c.MaxBVLC = binary.BigEndian.Uint16(payload[VMACLen+16:])
	c.MaxNPDU = binary.BigEndian.Uint16(payload[VMACLen+18:])
	return c, nil
}

// Encode serializes a BVLC-Result payload
func (r SCResultInfo) Encode() []byte {
	if !r.NAK {
		return []byte{r.ForFunction, scResultACK}
	}
	buf := []byte{r.ForFunction, scResultNAK, scErrorHeaderMarkerNoHdr}
	buf = binary.BigEndian.AppendUint16(buf, r.ErrorClass)
	buf = binary.BigEndian.AppendUint16(buf, r.ErrorCode)
	return append(buf, r.Details...)
}

// DecodeSCResult parses a BVLC-Result payload
func DecodeSCResult(payload []byte) (SCResultInfo, error) {
	if len(payload) < 2 {
		return SCResultInfo{}, fmt.Errorf("BVLC-Result too short: %d bytes", len(payload))
	}
	r := SCResultInfo{ForFunction: payload[0], NAK: payload[1] == scResultNAK}
	if !r.NAK {
		return r, nil
	}
	if len(payload) < 7 {
		return SCResultInfo{}, fmt.Errorf("BVLC-Result NAK too short: %d bytes", len(payload))
	}
	r.ErrorClass = binary.BigEndian.Uint16(payload[3:5])
	r.ErrorCode = binary.BigEndian.Uint16(payload[5:7])
	r.Details = string(payload[7:])
	return r, nil
}

// Error describes a NAK
func (r SCResultInfo) Error() string {
	msg := fmt.Sprintf("BVLC-SC function 0x%02x refused: class %d code %d", r.ForFunction, r.ErrorClass, r.ErrorCode)
	if r.Details != "" {
		msg += ": " + r.Details
	}
	return msg
}
