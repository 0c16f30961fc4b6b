// Package middleware implements the ordered request and event pipelines
// that sessions and servers run around their handlers.
//
// Global middleware runs first, in registration order, followed by the
// middleware registered for the message type. A middleware that returns
// without calling next short-circuits the rest of the chain and the
// handler. Middleware may rewrite a message but never its type.
package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// RequestNext continues a request chain.
type RequestNext func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// RequestMiddleware intercepts a request. Returning a response or an error
// without calling next short-circuits the chain.
type RequestMiddleware func(ctx context.Context, req *protocol.Request, next RequestNext) (*protocol.Response, error)

// RequestHandler produces the result of a request.
type RequestHandler func(ctx context.Context, req *protocol.Request) (any, error)

// EventNext continues an event chain.
type EventNext func(ctx context.Context, ev *protocol.Event) error

// EventMiddleware intercepts an event. Returning without calling next drops
// the event.
type EventMiddleware func(ctx context.Context, ev *protocol.Event, next EventNext) error

// EventHandler consumes an event at the end of a chain.
type EventHandler func(ctx context.Context, ev *protocol.Event) error

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for middleware failures.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.Component(l, "pipeline")
	}
}

// Pipeline holds global and type-scoped middleware. It is safe for
// concurrent use; registrations made while a message is in flight do not
// affect that message.
type Pipeline struct {
	mu            sync.RWMutex
	requestGlobal []RequestMiddleware
	requestTyped  map[string][]RequestMiddleware
	eventGlobal   []EventMiddleware
	eventTyped    map[string][]EventMiddleware
	logger        logging.Logger
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		requestTyped: make(map[string][]RequestMiddleware),
		eventTyped:   make(map[string][]EventMiddleware),
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use appends global request middleware.
func (p *Pipeline) Use(mw ...RequestMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requestGlobal = append(p.requestGlobal, mw...)
}

// UseFor appends request middleware that only runs for msgType.
func (p *Pipeline) UseFor(msgType string, mw ...RequestMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requestTyped[msgType] = append(p.requestTyped[msgType], mw...)
}

// UseEvent appends global event middleware.
func (p *Pipeline) UseEvent(mw ...EventMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eventGlobal = append(p.eventGlobal, mw...)
}

// UseEventFor appends event middleware that only runs for msgType.
func (p *Pipeline) UseEventFor(msgType string, mw ...EventMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eventTyped[msgType] = append(p.eventTyped[msgType], mw...)
}

func (p *Pipeline) requestChain(msgType string) []RequestMiddleware {
	p.mu.RLock()
	defer p.mu.RUnlock()
	typed := p.requestTyped[msgType]
	chain := make([]RequestMiddleware, 0, len(p.requestGlobal)+len(typed))
	chain = append(chain, p.requestGlobal...)
	return append(chain, typed...)
}

func (p *Pipeline) eventChain(msgType string) []EventMiddleware {
	p.mu.RLock()
	defer p.mu.RUnlock()
	typed := p.eventTyped[msgType]
	chain := make([]EventMiddleware, 0, len(p.eventGlobal)+len(typed))
	chain = append(chain, p.eventGlobal...)
	return append(chain, typed...)
}

// ProcessRequest runs req through the chain and handler. It always returns
// a well-formed response: handler results become success responses, typed
// errors become error responses carrying their code, and anything else
// (including panics) becomes an unexpected_error response.
func (p *Pipeline) ProcessRequest(ctx context.Context, req *protocol.Request, handler RequestHandler) *protocol.Response {
	return p.Dispatch(ctx, req, func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		data, err := handler(ctx, req)
		if err != nil {
			return nil, err
		}
		return protocol.NewSuccessResponse(data, req.Context.Reply()), nil
	})
}

// Dispatch is ProcessRequest with a terminal that produces the response
// itself, as a session does when the terminal is a transport round trip.
func (p *Pipeline) Dispatch(ctx context.Context, req *protocol.Request, terminal RequestNext) *protocol.Response {
	if req == nil {
		return protocol.NewErrorResponse(sdkerrors.ToErrorObject(sdkerrors.ValidationError("nil request")), nil)
	}
	in := *req
	in.Context = protocol.EnsureContext(req.Context)
	msgType := in.Type

	guard := func(next RequestNext) RequestNext {
		return func(ctx context.Context, r *protocol.Request) (*protocol.Response, error) {
			if r == nil {
				return nil, sdkerrors.ValidationError("middleware passed a nil request")
			}
			if r.Type != msgType {
				return nil, sdkerrors.TypeMutated(msgType, r.Type)
			}
			if r.Context == nil {
				r.Context = in.Context
			}
			return next(ctx, r)
		}
	}

	next := guard(terminal)
	chain := p.requestChain(msgType)
	for i := len(chain) - 1; i >= 0; i-- {
		mw, inner := chain[i], next
		next = guard(func(ctx context.Context, r *protocol.Request) (*protocol.Response, error) {
			return mw(ctx, r, inner)
		})
	}

	ctx = logging.ContextWithEnvelopeID(ctx, in.Context.ID)
	resp, err := p.runRequest(ctx, next, &in)
	if err != nil {
		return p.errorResponse(ctx, &in, err)
	}
	if resp == nil {
		return p.errorResponse(ctx, &in, sdkerrors.Unexpected(fmt.Errorf("no response produced for %s", msgType)))
	}
	if resp.Context == nil {
		resp.Context = in.Context.Reply()
	}
	if !resp.Success && resp.Error == nil {
		resp.Error = sdkerrors.ToErrorObject(sdkerrors.Unexpected(fmt.Errorf("failed response without error for %s", msgType)))
	}
	return resp
}

func (p *Pipeline) runRequest(ctx context.Context, next RequestNext, req *protocol.Request) (resp *protocol.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing request",
				logging.String("type", req.Type),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			resp, err = nil, sdkerrors.Unexpected(fmt.Errorf("panic: %v", r))
		}
	}()
	return next(ctx, req)
}

func (p *Pipeline) errorResponse(ctx context.Context, req *protocol.Request, err error) *protocol.Response {
	te := sdkerrors.Wrap(err)
	log := p.logger.WithContext(ctx).WithError(te)
	if te.Type() == sdkerrors.TypeUnexpected {
		log.Error("request failed", logging.String("type", req.Type))
	} else {
		log.Debug("request rejected", logging.String("type", req.Type))
	}
	return protocol.NewErrorResponse(sdkerrors.ToErrorObject(te), req.Context.Reply())
}

// ProcessEvent runs ev through the event chain and then handler, which may
// be nil. A middleware that does not call next drops the event silently.
// Errors and panics are returned as typed errors.
func (p *Pipeline) ProcessEvent(ctx context.Context, ev *protocol.Event, handler EventHandler) (err error) {
	if ev == nil {
		return sdkerrors.ValidationError("nil event")
	}
	in := *ev
	in.Context = protocol.EnsureContext(ev.Context)
	msgType := in.Type

	guard := func(next EventNext) EventNext {
		return func(ctx context.Context, e *protocol.Event) error {
			if e == nil {
				return sdkerrors.ValidationError("middleware passed a nil event")
			}
			if e.Type != msgType {
				return sdkerrors.TypeMutated(msgType, e.Type)
			}
			return next(ctx, e)
		}
	}

	next := guard(func(ctx context.Context, e *protocol.Event) error {
		if handler == nil {
			return nil
		}
		return handler(ctx, e)
	})
	chain := p.eventChain(msgType)
	for i := len(chain) - 1; i >= 0; i-- {
		mw, inner := chain[i], next
		next = guard(func(ctx context.Context, e *protocol.Event) error {
			return mw(ctx, e, inner)
		})
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing event",
				logging.String("type", msgType),
				logging.Any("panic", r),
			)
			err = sdkerrors.Unexpected(fmt.Errorf("panic: %v", r))
		}
	}()

	ctx = logging.ContextWithEnvelopeID(ctx, in.Context.ID)
	if err := next(ctx, &in); err != nil {
		return sdkerrors.Wrap(err)
	}
	return nil
}
