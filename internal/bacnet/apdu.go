package bacnet

import (
	"fmt"
)

// APDU types (high nibble of the first APDU byte)
const (
	PDUTypeConfirmedRequest   = 0x00
	PDUTypeUnconfirmedRequest = 0x10
	PDUTypeSimpleAck          = 0x20
	PDUTypeComplexAck         = 0x30
	PDUTypeSegmentAck         = 0x40
	PDUTypeError              = 0x50
	PDUTypeReject             = 0x60
	PDUTypeAbort              = 0x70
)

// Unconfirmed service choices
const (
	ServiceIAm   = 0x00
	ServiceWhoIs = 0x08
)

// Application tag numbers used by I-Am
const (
	tagUnsigned         = 2
	tagEnumerated       = 9
	tagObjectIdentifier = 12
)

// ObjectTypeDevice is the Device object type in an object identifier
const ObjectTypeDevice = 8

// Segmentation is the BACnetSegmentation enumeration
type Segmentation uint8

const (
	SegmentationBoth     Segmentation = 0
	SegmentationTransmit Segmentation = 1
	SegmentationReceive  Segmentation = 2
	SegmentationNone     Segmentation = 3
)

// String returns the protocol name of the segmentation option
func (s Segmentation) String() string {
	switch s {
	case SegmentationBoth:
		return "segmented-both"
	case SegmentationTransmit:
		return "segmented-transmit"
	case SegmentationReceive:
		return "segmented-receive"
	case SegmentationNone:
		return "no-segmentation"
	default:
		return fmt.Sprintf("segmentation(%d)", uint8(s))
	}
}

// InstanceRange limits which devices answer a Who-Is. The zero value
// matches every device.
type InstanceRange struct {
	Low     uint32
	High    uint32
	Limited bool
}

// NewInstanceRange returns an inclusive range of device instances
func NewInstanceRange(low, high uint32) InstanceRange {
	return InstanceRange{Low: low, High: high, Limited: true}
}

// Validate checks both bounds against MaxInstance
func (r InstanceRange) Validate() error {
	if !r.Limited {
		return nil
	}
	if r.Low > MaxInstance {
		return fmt.Errorf("device-instance-min=%d - not greater than %d", r.Low, MaxInstance)
	}
	if r.High > MaxInstance {
		return fmt.Errorf("device-instance-max=%d - not greater than %d", r.High, MaxInstance)
	}
	return nil
}

// String returns a short description of the range
func (r InstanceRange) String() string {
	if !r.Limited {
		return "all"
	}
	if r.Low == r.High {
		return fmt.Sprintf("%d", r.Low)
	}
	return fmt.Sprintf("%d-%d", r.Low, r.High)
}

// IAm carries the identity a device announces
type IAm struct {
	DeviceID     uint32
	MaxAPDU      uint32
	Segmentation Segmentation
	VendorID     uint16
}

// String returns a debug representation of the announcement
func (m IAm) String() string {
	return fmt.Sprintf("IAm{device=%d, max_apdu=%d, %s, vendor=%d}",
		m.DeviceID, m.MaxAPDU, m.Segmentation, m.VendorID)
}

// EncodeWhoIsAPDU builds an unconfirmed Who-Is request.
// Limits are only encoded for a limited range.
func EncodeWhoIsAPDU(r InstanceRange) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	apdu := []byte{PDUTypeUnconfirmedRequest, ServiceWhoIs}
	if r.Limited {
		apdu = appendContextUnsigned(apdu, 0, r.Low)
		apdu = appendContextUnsigned(apdu, 1, r.High)
	}
	return apdu, nil
}

// EncodeIAmAPDU builds an unconfirmed I-Am request
func EncodeIAmAPDU(m IAm) ([]byte, error) {
	if m.DeviceID > MaxInstance {
		return nil, fmt.Errorf("device instance %d exceeds %d", m.DeviceID, MaxInstance)
	}
	apdu := []byte{PDUTypeUnconfirmedRequest, ServiceIAm}

	objectID := uint32(ObjectTypeDevice)<<22 | m.DeviceID
	apdu = append(apdu, tagObjectIdentifier<<4|4,
		byte(objectID>>24), byte(objectID>>16), byte(objectID>>8), byte(objectID))
	apdu = appendApplicationUnsigned(apdu, tagUnsigned, m.MaxAPDU)
	apdu = appendApplicationUnsigned(apdu, tagEnumerated, uint32(m.Segmentation))
	apdu = appendApplicationUnsigned(apdu, tagUnsigned, uint32(m.VendorID))
	return apdu, nil
}

// DecodeIAm parses the service parameters that follow the I-Am choice
func DecodeIAm(params []byte) (IAm, error) {
	var m IAm
	offset := 0

	tag, value, next, err := readApplicationTag(params, offset)
	if err != nil {
		return m, fmt.Errorf("object identifier: %w", err)
	}
	if tag != tagObjectIdentifier || len(value) != 4 {
		return m, fmt.Errorf("expected object identifier, got tag %d length %d", tag, len(value))
	}
	objectID := decodeUnsigned(value)
	if objectID>>22 != ObjectTypeDevice {
		return m, fmt.Errorf("object type %d is not a device", objectID>>22)
	}
	m.DeviceID = objectID & MaxInstance
	offset = next

	tag, value, next, err = readApplicationTag(params, offset)
	if err != nil {
		return m, fmt.Errorf("max APDU: %w", err)
	}
	if tag != tagUnsigned {
		return m, fmt.Errorf("expected unsigned max APDU, got tag %d", tag)
	}
	m.MaxAPDU = decodeUnsigned(value)
	offset = next

	tag, value, next, err = readApplicationTag(params, offset)
	if err != nil {
		return m, fmt.Errorf("segmentation: %w", err)
	}
	if tag != tagEnumerated {
		return m, fmt.Errorf("expected enumerated segmentation, got tag %d", tag)
	}
	seg := decodeUnsigned(value)
	if seg > uint32(SegmentationNone) {
		return m, fmt.Errorf("segmentation %d out of range", seg)
	}
	m.Segmentation = Segmentation(seg)
	offset = next

	tag, value, _, err = readApplicationTag(params, offset)
	if err != nil {
		return m, fmt.Errorf("vendor id: %w", err)
	}
	if tag != tagUnsigned {
		return m, fmt.Errorf("expected unsigned vendor id, got tag %d", tag)
	}
	vendor := decodeUnsigned(value)
	if vendor > 0xFFFF {
		return m, fmt.Errorf("vendor id %d out of range", vendor)
	}
	m.VendorID = uint16(vendor)

	return m, nil
}

// unsignedBytes returns the minimal big-endian encoding of v (at least one byte)
func unsignedBytes(v uint32) []byte {
	switch {
	case v < 0x100:
		return []byte{byte(v)}
	case v < 0x10000:
		return []byte{byte(v >> 8), byte(v)}
	case v < 0x1000000:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

func appendApplicationUnsigned(buf []byte, tag byte, v uint32) []byte {
	b := unsignedBytes(v)
	buf = append(buf, tag<<4|byte(len(b)))
	return append(buf, b...)
}

func appendContextUnsigned(buf []byte, tag byte, v uint32) []byte {
	b := unsignedBytes(v)
	buf = append(buf, tag<<4|0x08|byte(len(b)))
	return append(buf, b...)
}

// readApplicationTag reads a short-form application tag (length <= 4)
func readApplicationTag(data []byte, offset int) (byte, []byte, int, error) {
	if offset >= len(data) {
		return 0, nil, 0, fmt.Errorf("truncated at offset %d", offset)
	}
	header := data[offset]
	if header&0x08 != 0 {
		return 0, nil, 0, fmt.Errorf("unexpected context tag 0x%02x", header)
	}
	tag := header >> 4
	length := int(header & 0x07)
	if length > 4 {
		return 0, nil, 0, fmt.Errorf("unsupported tag length %d", length)
	}
	if length == 0 {
		return 0, nil, 0, fmt.Errorf("empty value for tag %d", tag)
	}
	offset++
	if offset+length > len(data) {
		return 0, nil, 0, fmt.Errorf("value of tag %d truncated", tag)
	}
	return tag, data[offset : offset+length], offset + length, nil
}

func decodeUnsigned(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}
