// Package datalink implements the transports a discovery or announcement
// session runs over.
//
// BIP is BACnet/IP (Annex J): NPDUs travel in BVLL frames over UDP,
// normally on port 47808. Broadcasts go to the interface's directed
// broadcast address, or through a BBMD when the node is registered as a
// foreign device. Registration is renewed from Maintenance.
//
// SC is BACnet Secure Connect (Annex AB): the node holds one WebSocket
// connection to a hub, identifies itself with a random VMAC and a UUID,
// and exchanges Encapsulated-NPDU messages. Peer addresses are VMACs.
// Maintenance sends heartbeats on an idle connection.
//
// Open picks one of them from a config.Settings. A hub URI of "auto"
// looks the hub up over mDNS first.
package datalink
