package datalink

import (
	"encoding/binary"
	"fmt"
)

// BACnet/IP virtual link layer (Annex J)
const (
	bvllTypeBIP          = 0x81
	bvllHeaderLen        = 4
	bvllForwardedAddrLen = 6

	bvlcResult                = 0x00
	bvlcForwardedNPDU         = 0x04
	bvlcRegisterForeignDevice = 0x05
	bvlcDistributeBroadcast   = 0x09
	bvlcOriginalUnicastNPDU   = 0x0A
	bvlcOriginalBroadcastNPDU = 0x0B

	bvlcResultSuccess            = 0x0000
	bvlcResultRegisterFDNAK      = 0x0030
	bvlcResultDistributeBcastNAK = 0x0060
)

// bvllFrame is a decoded BVLL message
type bvllFrame struct {
	Function   byte
	Origin     []byte // B/IP address of the original sender (Forwarded-NPDU only)
	NPDU       []byte
	ResultCode uint16 // BVLC-Result only
}

func encodeBVLL(function byte, payload []byte) []byte {
	buf := make([]byte, bvllHeaderLen, bvllHeaderLen+len(payload))
	buf[0] = bvllTypeBIP
	buf[1] = function
	binary.BigEndian.PutUint16(buf[2:], uint16(bvllHeaderLen+len(payload)))
	return append(buf, payload...)
}

func encodeRegisterForeignDevice(ttlSeconds uint16) []byte {
	var ttl [2]byte
	binary.BigEndian.PutUint16(ttl[:], ttlSeconds)
	return encodeBVLL(bvlcRegisterForeignDevice, ttl[:])
}

func decodeBVLL(data []byte) (bvllFrame, error) {
	if len(data) < bvllHeaderLen {
		return bvllFrame{}, fmt.Errorf("BVLL too short: %d bytes", len(data))
	}
	if data[0] != bvllTypeBIP {
		return bvllFrame{}, fmt.Errorf("not a BACnet/IP BVLL: type 0x%02x", data[0])
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < bvllHeaderLen || length > len(data) {
		return bvllFrame{}, fmt.Errorf("BVLL length %d does not match datagram of %d bytes", length, len(data))
	}
	data = data[:length]

	f := bvllFrame{Function: data[1]}
	switch f.Function {
	case bvlcOriginalUnicastNPDU, bvlcOriginalBroadcastNPDU, bvlcDistributeBroadcast:
		f.NPDU = data[bvllHeaderLen:]
	case bvlcForwardedNPDU:
		if length < bvllHeaderLen+bvllForwardedAddrLen {
			return bvllFrame{}, fmt.Errorf("Forwarded-NPDU without original source")
		}
		f.Origin = data[bvllHeaderLen : bvllHeaderLen+bvllForwardedAddrLen]
		f.NPDU = data[bvllHeaderLen+bvllForwardedAddrLen:]
	case bvlcResult:
		if length < bvllHeaderLen+2 {
			return bvllFrame{}, fmt.Errorf("BVLC-Result without result code")
		}
		f.ResultCode = binary.BigEndian.Uint16(data[bvllHeaderLen:])
	}
	return f, nil
}

// bvlcResultText names the result codes a foreign device can receive
func bvlcResultText(code uint16) string {
	switch code {
	case bvlcResultSuccess:
		return "Successful completion"
	case bvlcResultRegisterFDNAK:
		return "Register-Foreign-Device NAK"
	case bvlcResultDistributeBcastNAK:
		return "Distribute-Broadcast-To-Network NAK"
	default:
		return fmt.Sprintf("BVLC result 0x%04x", code)
	}
}
