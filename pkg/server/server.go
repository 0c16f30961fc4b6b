package server

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/session-sdk-go/internal/ids"
	"github.com/ajitpratap0/session-sdk-go/pkg/config"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/middleware"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport"
)

// Handler answers a request. The returned value becomes the response data
// and a returned error becomes the response error.
type Handler func(ctx context.Context, payload any, rctx *protocol.Context, clientID string) (any, error)

// EventHandler consumes an event sent by a client.
type EventHandler func(ctx context.Context, payload any, ectx *protocol.Context, clientID string) error

// Server tracks the clients registered over a transport, answers the
// reserved $ requests and fans events out to clients.
type Server struct {
	transport transport.Transport
	opts      options
	logger    logging.Logger
	pipeline  *middleware.Pipeline
	clients   *clientRegistry
	subs      *subscriptionIndex
	startedAt time.Time

	mu      sync.Mutex
	running bool
	sweep   *sweeper
}

type sweeper struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a server over t and installs the system handlers. Call
// Start to begin accepting clients.
func New(t transport.Transport, opts ...Option) *Server {
	o := options{ServerOptions: config.DefaultServerOptions(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ServerID == "" {
		o.ServerID = ids.WithPrefix("srv")
	}
	if o.BroadcastWorkers <= 0 {
		o.BroadcastWorkers = config.DefaultServerOptions().BroadcastWorkers
	}

	s := &Server{
		transport: t,
		opts:      o,
		clients:   newClientRegistry(),
		subs:      newSubscriptionIndex(),
		startedAt: o.now(),
	}
	s.logger = logging.Component(o.logger, "server").WithFields(logging.String("server_id", o.ServerID))
	s.pipeline = o.pipeline
	if s.pipeline == nil {
		s.pipeline = middleware.New(middleware.WithLogger(s.logger))
	}
	s.installSystemHandlers()
	return s
}

// ID returns the server id.
func (s *Server) ID() string { return s.opts.ServerID }

// Pipeline returns the middleware pipeline inbound requests and events run
// through.
func (s *Server) Pipeline() *middleware.Pipeline { return s.pipeline }

// Transport returns the underlying transport.
func (s *Server) Transport() transport.Transport { return s.transport }

// Start connects the transport to address and starts the liveness sweep
// when a client timeout is configured. Starting a running server is a
// no-op.
func (s *Server) Start(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := s.opts.Validate(); err != nil {
		return err
	}
	if err := s.transport.Connect(ctx, address); err != nil {
		if _, typed := sdkerrors.AsTypedError(err); !typed {
			err = sdkerrors.ConnectionFailed(address, err)
		}
		return err
	}
	s.running = true
	s.startedAt = s.opts.now()

	if interval := s.opts.SweepInterval(); interval > 0 && s.opts.ClientTimeout > 0 {
		sctx, cancel := context.WithCancel(context.Background())
		s.sweep = &sweeper{cancel: cancel, done: make(chan struct{})}
		go s.runSweep(sctx, interval, s.sweep.done)
	}
	s.logger.Info("server started", logging.String("address", address))
	return nil
}

// Stop stops the sweep, forgets every client and disconnects the
// transport. It is idempotent.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	sw := s.sweep
	s.sweep = nil
	s.mu.Unlock()

	if sw != nil {
		sw.cancel()
		<-sw.done
	}
	for _, conn := range s.clients.clear() {
		s.subs.removeClient(conn.ClientID)
		s.notifyDisconnected(conn.ClientID, "server stopped")
	}
	err := s.transport.Disconnect(ctx)
	s.logger.Info("server stopped")
	return err
}

func (s *Server) runSweep(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictExpired(ctx)
		}
	}
}

// EvictExpired removes clients whose last heartbeat is older than the
// client timeout, tells each of them with $disconnected and returns their
// ids. It does nothing when no timeout is configured.
func (s *Server) EvictExpired(ctx context.Context) []string {
	if s.opts.ClientTimeout <= 0 {
		return nil
	}
	evicted := s.clients.evictBefore(s.opts.now().Add(-s.opts.ClientTimeout))
	out := make([]string, 0, len(evicted))
	for _, conn := range evicted {
		out = append(out, conn.ClientID)
		s.subs.removeClient(conn.ClientID)
		s.logger.Info("client expired",
			logging.String("client_id", conn.ClientID),
			logging.Time("last_heartbeat", conn.LastHeartbeatAt),
		)
		ev := protocol.DisconnectedEvent{ClientID: conn.ClientID, Reason: "heartbeat timeout"}
		if err := s.emitTo(ctx, conn.ClientID, protocol.TypeDisconnected, ev, nil); err != nil {
			s.logger.WithError(err).Debug("failed to notify expired client", logging.String("client_id", conn.ClientID))
		}
		s.notifyDisconnected(conn.ClientID, "expired")
	}
	return out
}

// HandleRequest installs handler for requestType behind the pipeline.
// Reserved $ types cannot be overridden.
func (s *Server) HandleRequest(requestType string, handler Handler) error {
	if requestType == "" {
		return sdkerrors.ValidationError("request type is empty")
	}
	if protocol.IsSystemType(requestType) {
		return sdkerrors.ValidationError("request type " + requestType + " is reserved")
	}
	s.handle(requestType, handler)
	return nil
}

func (s *Server) handle(requestType string, handler Handler) {
	s.transport.HandleRequest(requestType, func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		return s.pipeline.ProcessRequest(ctx, req, func(ctx context.Context, req *protocol.Request) (any, error) {
			return handler(ctx, req.Payload, req.Context, req.Context.Source)
		}), nil
	})
}

// OnEvent subscribes handler to events of eventType sent by clients. The
// returned function removes it.
func (s *Server) OnEvent(eventType string, handler EventHandler) func() {
	id := s.transport.On(eventType, func(ctx context.Context, ev *protocol.Event) {
		err := s.pipeline.ProcessEvent(ctx, ev, func(ctx context.Context, ev *protocol.Event) error {
			return handler(ctx, ev.Payload, ev.Context, ev.Context.Source)
		})
		if err != nil {
			s.logger.WithError(err).Warn("event handler failed", logging.String("type", eventType))
		}
	})
	return func() { s.transport.Off(eventType, id) }
}

// GetServerInfo reports the server's identity and load.
func (s *Server) GetServerInfo() protocol.ServerInfo {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()
	return protocol.ServerInfo{
		ServerID:         s.opts.ServerID,
		Version:          s.opts.Version,
		Uptime:           s.opts.now().Sub(started).Milliseconds(),
		ConnectedClients: s.clients.count(),
		Capabilities:     append([]string(nil), s.opts.Capabilities...),
	}
}

// Clients returns the registered clients ordered by id.
func (s *Server) Clients() []ClientConnection {
	return s.clients.snapshot()
}

// Client returns the registered client with the given id.
func (s *Server) Client(clientID string) (ClientConnection, bool) {
	return s.clients.get(clientID)
}

// Subscriptions returns the subscriptions of a client ordered by id.
func (s *Server) Subscriptions(clientID string) []Subscription {
	return s.subs.forClient(clientID)
}

func (s *Server) notifyConnected(clientID string) {
	total := s.clients.count()
	for _, obs := range s.opts.observers {
		obs.ClientConnected(clientID, total)
	}
}

func (s *Server) notifyDisconnected(clientID, reason string) {
	total := s.clients.count()
	for _, obs := range s.opts.observers {
		obs.ClientDisconnected(clientID, reason, total)
	}
}
