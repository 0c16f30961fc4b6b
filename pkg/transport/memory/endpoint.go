package memory

import (
	"context"
	"errors"
	"sync"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport"
)

type role int

const (
	roleServer role = iota
	roleClient
)

func (r role) String() string {
	if r == roleServer {
		return "server"
	}
	return "client"
}

// mailbox serializes event delivery to one endpoint.
type mailbox struct {
	events chan *protocol.Event
	done   chan struct{}
}

// Endpoint is one side of an in-memory connection and implements
// transport.Transport.
type Endpoint struct {
	*transport.Handlers
	*transport.Authenticator

	hub    *Hub
	role   role
	id     string
	link   transport.Link
	logger logging.Logger

	mu      sync.RWMutex
	box     *mailbox
	server  *Endpoint
	clients map[string]*Endpoint
	routes  map[string]*Endpoint
}

var _ transport.Transport = (*Endpoint)(nil)

// ID returns the endpoint identifier. A server can target a client by this
// id or by any envelope source the client has used.
func (e *Endpoint) ID() string {
	return e.id
}

// Connect listens on address for a server endpoint and attaches to the
// server listening on address for a client endpoint. Connecting an already
// connected endpoint to the same address is a no-op.
func (e *Endpoint) Connect(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return sdkerrors.Wrap(err)
	}
	if e.role == roleServer {
		return e.listen(address)
	}
	return e.attach(address)
}

func (e *Endpoint) listen(address string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link.IsUp() {
		if e.link.Target() == address {
			return nil
		}
		return sdkerrors.ConnectionFailed(address, errors.New("endpoint already listening on "+e.link.Target()))
	}
	if err := e.hub.listen(address, e); err != nil {
		return err
	}
	e.clients = make(map[string]*Endpoint)
	e.routes = make(map[string]*Endpoint)
	e.startMailboxLocked()
	e.link.Up(address)
	e.logger.Debug("listening", logging.String("address", address))
	return nil
}

func (e *Endpoint) attach(address string) error {
	srv := e.hub.lookup(address)
	if srv == nil {
		return sdkerrors.ConnectionFailed(address, errNoListener)
	}

	e.mu.Lock()
	if e.server == srv && e.link.IsUp() {
		e.mu.Unlock()
		return nil
	}
	old := e.server
	e.server = srv
	e.startMailboxLocked()
	e.link.Down()
	e.link.Up(address)
	e.mu.Unlock()

	if old != nil {
		old.detach(e)
	}
	if !srv.adopt(e) {
		e.mu.Lock()
		e.server = nil
		e.mu.Unlock()
		return sdkerrors.ConnectionFailed(address, errServerStopped)
	}
	e.logger.Debug("attached", logging.String("address", address))
	return nil
}

// Disconnect tears the endpoint down. A server endpoint stops listening and
// drops every attached client. It is idempotent.
func (e *Endpoint) Disconnect(context.Context) error {
	e.mu.Lock()
	if !e.link.Down() {
		e.mu.Unlock()
		return nil
	}
	box := e.box
	e.box = nil
	srv := e.server
	e.server = nil
	clients := e.clients
	e.clients = nil
	e.routes = nil
	e.mu.Unlock()

	if box != nil {
		close(box.done)
	}
	if e.role == roleServer {
		e.hub.unlisten(e.link.Target(), e)
		for _, c := range clients {
			c.serverGone(e)
		}
	} else if srv != nil {
		srv.detach(e)
	}
	e.logger.Debug("disconnected")
	return nil
}

// Emit delivers an event. Client events go to the server. Server events go
// to the client named by the context target, or to every client when the
// target is empty. A full receiver mailbox fails the emit.
func (e *Endpoint) Emit(_ context.Context, eventType string, payload any, ectx *protocol.Context) error {
	if err := e.link.Require("emit " + eventType); err != nil {
		return err
	}
	ev := protocol.NewEvent(eventType, payload, protocol.EnsureContext(ectx))

	if e.role == roleClient {
		srv, err := e.peerServer()
		if err != nil {
			return err
		}
		srv.learn(ev.Context.Source, e)
		return srv.enqueue(ev)
	}

	targets, err := e.resolve(ev.Context.Target)
	if err != nil {
		return err
	}
	var errs []error
	for _, c := range targets {
		if err := c.enqueue(cloneEvent(ev)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return sdkerrors.TransportError("emit "+eventType, errors.Join(errs...))
	}
	return nil
}

// Request delivers a request to the peer and waits for its response, the
// end of ctx, or the endpoint disconnecting, whichever comes first. A
// server endpoint must name the client in the context target.
func (e *Endpoint) Request(ctx context.Context, requestType string, payload any, rctx *protocol.Context) (*protocol.Response, error) {
	if err := e.link.Require("request " + requestType); err != nil {
		return nil, err
	}
	req := protocol.NewRequest(requestType, payload, protocol.EnsureContext(rctx))

	var peer *Endpoint
	if e.role == roleClient {
		srv, err := e.peerServer()
		if err != nil {
			return nil, err
		}
		srv.learn(req.Context.Source, e)
		peer = srv
	} else {
		if req.Context.Target == "" {
			return nil, sdkerrors.ValidationError("server request " + requestType + " has no target")
		}
		targets, err := e.resolve(req.Context.Target)
		if err != nil {
			return nil, err
		}
		peer = targets[0]
	}

	e.mu.RLock()
	box := e.box
	e.mu.RUnlock()
	if box == nil {
		return nil, sdkerrors.NotConnected("request " + requestType)
	}

	out := make(chan *protocol.Response, 1)
	go func() {
		out <- peer.Dispatch(ctx, req)
	}()

	select {
	case resp := <-out:
		return resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, sdkerrors.Timeout(requestType, 0)
		}
		return nil, sdkerrors.Cancelled(requestType)
	case <-box.done:
		return nil, sdkerrors.NotConnected("request " + requestType)
	}
}

func (e *Endpoint) peerServer() (*Endpoint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.server == nil {
		return nil, sdkerrors.ConnectionLost("server went away", errServerStopped)
	}
	return e.server, nil
}

func (e *Endpoint) startMailboxLocked() {
	if e.box != nil {
		return
	}
	box := &mailbox{
		events: make(chan *protocol.Event, e.hub.mailboxSize),
		done:   make(chan struct{}),
	}
	e.box = box
	go e.drain(box)
}

func (e *Endpoint) drain(box *mailbox) {
	for {
		select {
		case ev := <-box.events:
			e.DispatchEvent(context.Background(), ev)
		case <-box.done:
			return
		}
	}
}

func (e *Endpoint) enqueue(ev *protocol.Event) error {
	e.mu.RLock()
	box := e.box
	e.mu.RUnlock()
	if box == nil {
		return sdkerrors.ConnectionLost("peer closed", nil)
	}
	select {
	case box.events <- ev:
		return nil
	case <-box.done:
		return sdkerrors.ConnectionLost("peer closed", nil)
	default:
		return sdkerrors.TransportError("emit "+ev.Type, errMailboxFull)
	}
}

// adopt registers client c with a listening server endpoint.
func (e *Endpoint) adopt(c *Endpoint) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clients == nil {
		return false
	}
	e.clients[c.id] = c
	return true
}

func (e *Endpoint) detach(c *Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.clients, c.id)
	for src, ep := range e.routes {
		if ep == c {
			delete(e.routes, src)
		}
	}
}

// learn binds an envelope source to the client that sent it so later
// targeted server emits reach it.
func (e *Endpoint) learn(source string, c *Endpoint) {
	if source == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.routes != nil {
		e.routes[source] = c
	}
}

func (e *Endpoint) resolve(target string) ([]*Endpoint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if target == "" {
		out := make([]*Endpoint, 0, len(e.clients))
		for _, c := range e.clients {
			out = append(out, c)
		}
		return out, nil
	}
	if c, ok := e.routes[target]; ok {
		return []*Endpoint{c}, nil
	}
	if c, ok := e.clients[target]; ok {
		return []*Endpoint{c}, nil
	}
	return nil, sdkerrors.ClientNotFound(target)
}

func (e *Endpoint) serverGone(srv *Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server == srv {
		e.server = nil
	}
}

func cloneEvent(ev *protocol.Event) *protocol.Event {
	out := *ev
	out.Context = ev.Context.Clone()
	return &out
}
