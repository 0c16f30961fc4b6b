package session_test

import (
	"context"
	"fmt"

	session "github.com/ajitpratap0/session-sdk-go"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

func Example() {
	ctx := context.Background()
	hub := session.NewMemoryHub()

	srv := session.NewServer(hub.Server(),
		session.WithServerID("greeter"),
		session.WithServerLogger(logging.NewNop()),
	)
	_ = srv.HandleRequest("greet", func(_ context.Context, payload any, _ *protocol.Context, clientID string) (any, error) {
		return fmt.Sprintf("hello %v, from %s", payload, clientID), nil
	})
	if err := srv.Start(ctx, "inproc://greeter"); err != nil {
		fmt.Println(err)
		return
	}
	defer srv.Stop(ctx)

	s := session.NewClient(hub.Client(),
		session.WithClientID("alice"),
		session.WithClientLogger(logging.NewNop()),
	)
	if err := s.Connect(ctx, "inproc://greeter"); err != nil {
		fmt.Println(err)
		return
	}
	defer s.Disconnect(ctx)

	resp, err := s.Request(ctx, "greet", "world")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(s.Status(), s.ServerID())
	fmt.Println(resp.Data)
	// Output:
	// connected greeter
	// hello world, from alice
}
