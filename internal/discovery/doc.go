// Package discovery finds and advertises BACnet/SC hubs with mDNS.
//
// Hubs register the "_bacnet-sc-hub._tcp" service type. The TXT record
// carries the WebSocket path and whether TLS is used, which is enough to
// rebuild the hub URI:
//
//	uri, err := discovery.FindHubURI(ctx, 3*time.Second)
//	if err != nil {
//	    return err
//	}
//	// uri == "wss://192.168.1.10:4443/"
//
// The "bacscan hub --advertise" command uses Advertise for the other side.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - The hub must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
