// Package session runs the two BACnet client loops: discovery (Who-Is,
// collecting I-Am replies into a registry) and announcement (sending our
// own I-Am).
//
// Both loops are single threaded. The only place they block is
// Transport.Receive, bounded by the configured poll delay; timers are
// checked after every poll. A decoded Abort or Reject ends either loop
// at the next poll boundary and is reported in the result, not as an
// error.
//
// # Retransmission
//
// A discovery sends once, then waits for the request timeout. When the
// timeout expires it sends again while retransmissions remain (or
// forever with RepeatForever). Retries=2 means three sends in total.
//
//	d := session.NewDiscovery(link, session.DiscoveryConfig{
//		Destination: bacnet.GlobalBroadcast(),
//		Retries:     2,
//	})
//	res, err := d.Run(ctx)
//	if err != nil {
//		return err
//	}
//	res.Registry.Render(os.Stdout)
package session
