// Package transport defines the contract between sessions, servers and the
// wire, and the pieces concrete transports compose.
//
// A Transport moves envelopes. It connects to a connection string, emits
// events, issues requests that resolve to exactly one response, routes
// inbound requests to handlers by type, and fans inbound events out to
// listeners. It never interprets payloads and never reconnects on its own;
// that is the session's job.
//
// Concrete transports live in subpackages:
//
//   - memory: in-process hub, used by tests and single-binary deployments
//   - stream: newline-delimited JSON over any io.Reader/io.Writer pair
//   - pubsub: request/reply and events over a watermill Publisher/Subscriber
//
// Decorators wrap a Transport to add behavior without touching it, e.g.
// NewReliabilityDecorator for retries and circuit breaking.
package transport

import (
	"context"

	"github.com/ajitpratap0/session-sdk-go/pkg/auth"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// RequestHandler answers an inbound request. Returning an error instead of
// a response is reported to the caller as a transport_error response.
type RequestHandler func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// EventHandler consumes an inbound event.
type EventHandler func(ctx context.Context, ev *protocol.Event)

// HandlerID identifies a registration made with On.
type HandlerID uint64

// Transport is the contract every wire implementation satisfies.
type Transport interface {
	// Connect establishes the link described by connString. Servers listen
	// on it, clients dial it.
	Connect(ctx context.Context, connString string) error

	// Disconnect tears the link down. It is idempotent.
	Disconnect(ctx context.Context) error

	// Emit sends a fire-and-forget event. A server addresses a single
	// client by setting ectx.Target; an empty target reaches every peer.
	Emit(ctx context.Context, eventType string, payload any, ectx *protocol.Context) error

	// Request sends a request and waits for its response. Delivered error
	// responses are returned as responses; a nil response comes with a
	// typed error (timeout, not_connected, transport_error).
	Request(ctx context.Context, requestType string, payload any, rctx *protocol.Context) (*protocol.Response, error)

	// HandleRequest installs the handler for inbound requests of a type,
	// replacing any previous one.
	HandleRequest(requestType string, handler RequestHandler)

	// On subscribes to inbound events of a type.
	On(eventType string, handler EventHandler) HandlerID

	// Off removes a subscription made with On.
	Off(eventType string, id HandlerID)

	// Login authenticates with credentials and remembers the token.
	Login(ctx context.Context, creds *auth.AuthRequest) (*auth.AuthResult, error)

	// Logout revokes the remembered token.
	Logout(ctx context.Context) error
}
