// Package client implements the client side of a session: a connection to a
// server over any transport.Transport that registers itself, keeps itself
// alive with heartbeats, reconnects after failures and restores its event
// subscriptions when it does.
//
// A Session moves between the statuses
//
//	disconnected -> connecting -> connected <-> reconnecting
//
// with error marking a failed attempt or a lost connection. Every
// transition is reported to status listeners and every fault to error
// listeners before a reconnect is scheduled.
//
// Basic usage:
//
//	hub := memory.NewHub()
//	s := client.New(hub.Client(),
//		client.WithClientID("worker-1"),
//		client.WithReconnectInterval(500*time.Millisecond),
//	)
//	if err := s.Connect(ctx, "inproc://app"); err != nil {
//		return err
//	}
//	defer s.Disconnect(context.Background())
//
//	resp, err := s.Request(ctx, "orders.get", map[string]any{"id": 42})
//
// Outgoing requests and incoming events run through the session's
// middleware pipeline, see Pipeline.
package client
