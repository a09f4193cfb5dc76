// Package hub is a minimal BACnet/SC hub for labs and tests.
//
// Nodes connect over WebSocket with the hub.bsc.bacnet.org subprotocol
// and send Connect-Request with their VMAC and device UUID. The hub
// refuses a VMAC already held by a different UUID, then relays
// Encapsulated-NPDU messages: broadcasts go to every other node, unicasts
// to the node owning the destination VMAC. Heartbeats and disconnects are
// answered. Address resolution, direct connections and failover hubs are
// not implemented.
//
// Server wraps the Hub in a TLS 1.3 listener. Without a certificate it
// generates a self-signed one in memory. It can advertise itself over
// mDNS as _bacnet-sc-hub._tcp so that nodes configured with hub "auto"
// find it.
//
// Usage:
//
//	srv, err := hub.NewServer(hub.Config{Listen: ":4443", Advertise: true})
//	if err != nil {
//	    return err
//	}
//	return srv.ListenAndServe(ctx)
package hub
