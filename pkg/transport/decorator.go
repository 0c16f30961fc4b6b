package transport

import (
	"context"

	"github.com/ajitpratap0/session-sdk-go/pkg/auth"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// Decorator wraps a transport to add behavior such as retries or logging.
type Decorator interface {
	Wrap(t Transport) Transport
}

// DecoratorFunc adapts a function to Decorator.
type DecoratorFunc func(Transport) Transport

func (f DecoratorFunc) Wrap(t Transport) Transport {
	return f(t)
}

// Chain composes decorators so that the first one is the outermost.
func Chain(decorators ...Decorator) Decorator {
	return DecoratorFunc(func(t Transport) Transport {
		for i := len(decorators) - 1; i >= 0; i-- {
			t = decorators[i].Wrap(t)
		}
		return t
	})
}

// Forwarder delegates every method to Next. Decorators embed it and
// override what they change.
type Forwarder struct {
	Next Transport
}

func (f *Forwarder) Connect(ctx context.Context, connString string) error {
	return f.Next.Connect(ctx, connString)
}

func (f *Forwarder) Disconnect(ctx context.Context) error {
	return f.Next.Disconnect(ctx)
}

func (f *Forwarder) Emit(ctx context.Context, eventType string, payload any, ectx *protocol.Context) error {
	return f.Next.Emit(ctx, eventType, payload, ectx)
}

func (f *Forwarder) Request(ctx context.Context, requestType string, payload any, rctx *protocol.Context) (*protocol.Response, error) {
	return f.Next.Request(ctx, requestType, payload, rctx)
}

func (f *Forwarder) HandleRequest(requestType string, handler RequestHandler) {
	f.Next.HandleRequest(requestType, handler)
}

func (f *Forwarder) On(eventType string, handler EventHandler) HandlerID {
	return f.Next.On(eventType, handler)
}

func (f *Forwarder) Off(eventType string, id HandlerID) {
	f.Next.Off(eventType, id)
}

func (f *Forwarder) Login(ctx context.Context, creds *auth.AuthRequest) (*auth.AuthResult, error) {
	return f.Next.Login(ctx, creds)
}

func (f *Forwarder) Logout(ctx context.Context) error {
	return f.Next.Logout(ctx)
}
