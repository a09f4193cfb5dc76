// Package bacnet implements the slice of the BACnet protocol needed to
// discover devices and announce a device identity.
//
// The package covers three layers:
//   - Addressing: Address (MAC, network number, network address) and the
//     parsing rules used by the command line for --mac and --dadr values.
//   - Network layer: NPDU encoding with a destination specifier and NPDU
//     decoding that recovers the source network and address of a reply.
//   - Application layer: Who-Is and I-Am encoding, and decoding of inbound
//     APDUs into a closed set of events (I-Am, Abort, Reject, Unrecognized).
//
// # Address Forms
//
//	Address{}                                  local broadcast
//	Address{Net: BroadcastNetwork}             global broadcast
//	Address{Net: 123}                          broadcast on network 123
//	Address{MAC: []byte{10,0,0,1,0xBA,0xC0}}   unicast on the local network
//	Address{MAC: router, Net: 123, Adr: [5]}   station 5 on network 123 via router
//
// # Usage Example
//
//	var codec bacnet.Codec
//	npdu, err := codec.EncodeWhoIs(dest, bacnet.InstanceRange{})
//	...
//	event, err := codec.Decode(src, received)
//	switch ev := event.(type) {
//	case bacnet.IAmEvent:
//	    fmt.Println(ev.IAm.DeviceID)
//	case bacnet.AbortEvent:
//	    fmt.Println(ev.Reason)
//	}
//
// Segmentation, confirmed services and network-layer messages are out of
// scope: such PDUs decode to UnrecognizedEvent.
//
// All functions are stateless and safe for concurrent use.
package bacnet
