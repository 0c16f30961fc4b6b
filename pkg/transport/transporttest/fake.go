// Package transporttest provides a scriptable in-memory Transport for
// exercising sessions and servers without a real peer.
package transporttest

import (
	"context"
	"sync"

	"github.com/ajitpratap0/session-sdk-go/pkg/auth"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport"
)

// Fake records outbound traffic and lets tests script outcomes and inject
// inbound messages. Unset hooks succeed.
type Fake struct {
	*transport.Handlers
	*transport.Authenticator

	link transport.Link

	mu          sync.Mutex
	connectFn   func(ctx context.Context, connString string) error
	requestFn   func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	emitFn      func(ctx context.Context, ev *protocol.Event) error
	connects    int
	disconnects int
	requests    []*protocol.Request
	events      []*protocol.Event
}

var _ transport.Transport = (*Fake)(nil)

// New creates a Fake.
func New() *Fake {
	return &Fake{
		Handlers:      transport.NewHandlers(nil),
		Authenticator: transport.NewAuthenticator(nil),
	}
}

// WithAuthProvider makes Login and Logout use p.
func (f *Fake) WithAuthProvider(p auth.AuthProvider) *Fake {
	f.Authenticator = transport.NewAuthenticator(p)
	return f
}

// OnConnect scripts Connect.
func (f *Fake) OnConnect(fn func(ctx context.Context, connString string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectFn = fn
}

// OnRequest scripts Request. Returning (nil, nil) yields an empty success.
func (f *Fake) OnRequest(fn func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestFn = fn
}

// OnEmit scripts Emit.
func (f *Fake) OnEmit(fn func(ctx context.Context, ev *protocol.Event) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitFn = fn
}

func (f *Fake) Connect(ctx context.Context, connString string) error {
	f.mu.Lock()
	f.connects++
	fn := f.connectFn
	f.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, connString); err != nil {
			return err
		}
	}
	f.link.Up(connString)
	return nil
}

func (f *Fake) Disconnect(context.Context) error {
	if f.link.Down() {
		f.mu.Lock()
		f.disconnects++
		f.mu.Unlock()
	}
	return nil
}

func (f *Fake) Emit(ctx context.Context, eventType string, payload any, ectx *protocol.Context) error {
	if err := f.link.Require("emit " + eventType); err != nil {
		return err
	}
	ev := protocol.NewEvent(eventType, payload, ectx)

	f.mu.Lock()
	f.events = append(f.events, ev)
	fn := f.emitFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, ev)
	}
	return nil
}

func (f *Fake) Request(ctx context.Context, requestType string, payload any, rctx *protocol.Context) (*protocol.Response, error) {
	if err := f.link.Require("request " + requestType); err != nil {
		return nil, err
	}
	req := protocol.NewRequest(requestType, payload, rctx)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.requestFn
	f.mu.Unlock()

	if fn != nil {
		resp, err := fn(ctx, req)
		if err != nil || resp != nil {
			return resp, err
		}
	}
	return protocol.NewSuccessResponse(nil, req.Context.Reply()), nil
}

// Connected reports whether the fake link is up.
func (f *Fake) Connected() bool {
	return f.link.IsUp()
}

// Deliver injects an inbound event and returns the number of handlers run.
func (f *Fake) Deliver(ctx context.Context, eventType string, payload any, ectx *protocol.Context) int {
	return f.DispatchEvent(ctx, protocol.NewEvent(eventType, payload, ectx))
}

// Call injects an inbound request and returns the handler's response.
func (f *Fake) Call(ctx context.Context, requestType string, payload any, rctx *protocol.Context) *protocol.Response {
	return f.Dispatch(ctx, protocol.NewRequest(requestType, payload, rctx))
}

// CallFrom is Call with the envelope source set to clientID.
func (f *Fake) CallFrom(ctx context.Context, clientID, requestType string, payload any) *protocol.Response {
	rctx := protocol.NewContext()
	rctx.Source = clientID
	return f.Call(ctx, requestType, payload, rctx)
}

// Connects returns the number of Connect calls.
func (f *Fake) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Disconnects returns the number of effective Disconnect calls.
func (f *Fake) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// Requests returns the recorded outbound requests, optionally filtered by
// type.
func (f *Fake) Requests(types ...string) []*protocol.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*protocol.Request, 0, len(f.requests))
	for _, r := range f.requests {
		if matches(r.Type, types) {
			out = append(out, r)
		}
	}
	return out
}

// Events returns the recorded outbound events, optionally filtered by type.
func (f *Fake) Events(types ...string) []*protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*protocol.Event, 0, len(f.events))
	for _, e := range f.events {
		if matches(e.Type, types) {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears recorded traffic.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
	f.events = nil
}

func matches(t string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}
