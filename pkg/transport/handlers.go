package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// Handlers is the inbound routing table shared by the concrete transports.
// The zero value is not usable; call NewHandlers.
type Handlers struct {
	mu       sync.RWMutex
	requests map[string]RequestHandler
	events   map[string]map[HandlerID]EventHandler
	nextID   atomic.Uint64
	logger   logging.Logger
}

// NewHandlers creates an empty routing table.
func NewHandlers(logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		requests: make(map[string]RequestHandler),
		events:   make(map[string]map[HandlerID]EventHandler),
		logger:   logger,
	}
}

// HandleRequest installs the handler for requestType.
func (h *Handlers) HandleRequest(requestType string, handler RequestHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if handler == nil {
		delete(h.requests, requestType)
		return
	}
	h.requests[requestType] = handler
}

// On registers an event handler.
func (h *Handlers) On(eventType string, handler EventHandler) HandlerID {
	id := HandlerID(h.nextID.Add(1))
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events[eventType] == nil {
		h.events[eventType] = make(map[HandlerID]EventHandler)
	}
	h.events[eventType][id] = handler
	return id
}

// Off removes an event handler.
func (h *Handlers) Off(eventType string, id HandlerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.events[eventType]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(h.events, eventType)
		}
	}
}

// HasRequestHandler reports whether requestType is routed.
func (h *Handlers) HasRequestHandler(requestType string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.requests[requestType]
	return ok
}

// Dispatch routes req to its handler and always returns a response.
// Unrouted types yield a handler_not_found response; handler errors and
// panics yield error responses.
func (h *Handlers) Dispatch(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in request handler",
				logging.String("type", req.Type),
				logging.Any("panic", r),
			)
			resp = protocol.NewErrorResponse(
				sdkerrors.ToErrorObject(sdkerrors.Unexpected(fmt.Errorf("panic: %v", r))),
				req.Context.Reply(),
			)
		}
	}()

	h.mu.RLock()
	handler, ok := h.requests[req.Type]
	h.mu.RUnlock()

	if !ok {
		return protocol.NewErrorResponse(sdkerrors.ToErrorObject(sdkerrors.HandlerNotFound(req.Type)), req.Context.Reply())
	}

	resp, err := handler(ctx, req)
	if err != nil {
		te, typed := sdkerrors.AsTypedError(err)
		if !typed {
			te = sdkerrors.TransportError("handle "+req.Type, err)
		}
		return protocol.NewErrorResponse(sdkerrors.ToErrorObject(te), req.Context.Reply())
	}
	if resp == nil {
		return protocol.NewErrorResponse(
			sdkerrors.ToErrorObject(sdkerrors.Unexpected(fmt.Errorf("handler for %s returned no response", req.Type))),
			req.Context.Reply(),
		)
	}
	return resp
}

// DispatchEvent delivers ev to every handler registered for its type in
// registration order. A panicking handler is logged and does not prevent
// delivery to the others. It returns the number of handlers invoked.
func (h *Handlers) DispatchEvent(ctx context.Context, ev *protocol.Event) int {
	h.mu.RLock()
	set := h.events[ev.Type]
	ids := make([]HandlerID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	handlers := make([]EventHandler, 0, len(set))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		handlers = append(handlers, set[id])
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		h.safeCall(ctx, ev, handler)
	}
	return len(handlers)
}

func (h *Handlers) safeCall(ctx context.Context, ev *protocol.Event, handler EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in event handler",
				logging.String("type", ev.Type),
				logging.Any("panic", r),
			)
		}
	}()
	handler(ctx, ev)
}
