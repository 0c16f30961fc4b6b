// Package pkg groups the packages of the session SDK.
//
// # Client Usage
//
//	s := client.New(transport,
//	    client.WithClientID("worker-1"),
//	    client.WithAutoReconnect(true),
//	)
//	if err := s.Connect(ctx, address); err != nil {
//	    // Handle error
//	}
//	defer s.Disconnect(ctx)
//
//	subID, err := s.Subscribe(ctx, []string{"jobs.created"}, nil)
//	s.On("jobs.created", func(ctx context.Context, ev *protocol.Event) {
//	    // Handle event
//	})
//
// # Server Usage
//
//	srv := server.New(transport, server.WithClientTimeout(30*time.Second))
//	srv.HandleRequest("jobs.create", createJob)
//	if err := srv.Start(ctx, address); err != nil {
//	    // Handle error
//	}
//	srv.Publish(ctx, "jobs.created", job)
//
// # Sub-packages
//
//   - auth: token providers plus auth and rate limit middleware
//   - client: the client session
//   - config: option structs and TOML loading
//   - errors: typed errors, definitions registry and retry
//   - logging: structured logger
//   - middleware: request and event pipeline
//   - observability: metrics and tracing
//   - protocol: envelopes and reserved message types
//   - server: the server session manager
//   - transport: the transport contract and implementations
//   - utils: test helpers such as the goroutine leak detector
package pkg
