// Package server implements the server side of a session: a registry of
// clients that registered over a transport.Transport, the handlers for the
// reserved $ message types, and fan-out of events to registered or
// subscribed clients.
//
// Application requests are installed with HandleRequest and run through
// the server's middleware pipeline:
//
//	srv := server.New(hub.Server(), server.WithServerID("orders"))
//	_ = srv.HandleRequest("orders.get", func(ctx context.Context, payload any, rctx *protocol.Context, clientID string) (any, error) {
//		return lookup(payload)
//	})
//	if err := srv.Start(ctx, "inproc://orders"); err != nil {
//		return err
//	}
//	defer srv.Stop(context.Background())
//
//	srv.Broadcast(ctx, "orders.changed", change)
//
// With a client timeout configured the server evicts clients that stop
// sending heartbeats, on a timer running every heartbeat interval (or half
// the timeout), and sends each evicted client $disconnected.
package server
