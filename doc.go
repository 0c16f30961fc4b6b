// Package session is the root of the session SDK, a transport-agnostic
// messaging runtime. It re-exports the constructors and options of the
// sub-packages for callers that want a single import.
//
// # Overview
//
// The SDK consists of several sub-packages:
//
//   - pkg/client: the client session (connect, register, heartbeat,
//     reconnect, subscriptions, requests and events)
//   - pkg/server: the server session manager (client registry, system
//     handlers, broadcast, publish and liveness sweep)
//   - pkg/middleware: the request and event middleware pipeline
//   - pkg/protocol: envelopes, contexts and the reserved $ payloads
//   - pkg/errors: typed errors, the error registry and retry helpers
//   - pkg/transport: the transport contract plus memory, stream and
//     pub/sub implementations
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//
// # Creating a Server
//
//	hub := session.NewMemoryHub()
//	srv := session.NewServer(hub.Server(), session.WithServerID("chat"))
//	srv.HandleRequest("rooms.join", func(ctx context.Context, payload any, rctx *protocol.Context, clientID string) (any, error) {
//	    return map[string]any{"member": clientID}, nil
//	})
//	if err := srv.Start(ctx, "inproc://chat"); err != nil {
//	    // Handle error
//	}
//	defer srv.Stop(ctx)
//
// # Creating a Client
//
//	s := session.NewClient(hub.Client(),
//	    session.WithClientID("alice"),
//	    session.WithHeartbeatInterval(10*time.Second),
//	)
//	s.OnStatusChange(func(status, prev session.Status) {
//	    log.Printf("%s -> %s", prev, status)
//	})
//	if err := s.Connect(ctx, "inproc://chat"); err != nil {
//	    // Handle error; with auto-reconnect the session keeps trying
//	}
//	defer s.Disconnect(ctx)
//
//	resp, err := s.Request(ctx, "rooms.join", "lobby")
//
// # Examples
//
// The examples directory contains runnable programs:
//
//   - chat: memory transport, config file, metrics endpoint
//   - stdio: stream transport over a pipe pair
//   - pubsub: watermill Go channel transport
package session
