package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/session-sdk-go/pkg/config"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/middleware"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport"
)

// Status is the connection state of a Session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// StatusListener observes status transitions.
type StatusListener func(status, previous Status)

// ErrorListener observes session faults.
type ErrorListener func(err error)

// EventHandler handles an inbound event.
type EventHandler func(ctx context.Context, ev *protocol.Event)

// Subscription is an active server-side subscription mirrored locally.
type Subscription struct {
	ID     string
	Events []string
	Filter any
}

// task is a cancellable background goroutine.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newTask() (*task, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &task{cancel: cancel, done: make(chan struct{})}, ctx
}

// Session is one logical connection to a server over a Transport. All
// methods are safe for concurrent use.
type Session struct {
	id        string
	transport transport.Transport
	opts      options
	logger    logging.Logger
	pipeline  *middleware.Pipeline

	// connectMu serializes handshakes and teardown.
	connectMu sync.Mutex

	mu               sync.Mutex
	status           Status
	target           string
	epoch            uint64
	connectionID     string
	serverID         string
	lastHeartbeatAt  time.Time
	reconnectAttempt int
	subscriptions    map[string]Subscription
	heartbeat        *task
	reconnect        *task
	cancelAttempt    context.CancelFunc
	lost             chan struct{}
	token            string

	statusListeners listenerSet[StatusListener]
	errorListeners  listenerSet[ErrorListener]
	liveHeartbeats  atomic.Int32
}

// New creates a disconnected session over t.
func New(t transport.Transport, opts ...Option) *Session {
	o := options{ClientOptions: config.DefaultClientOptions()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}

	s := &Session{
		id:            uuid.NewString(),
		transport:     t,
		opts:          o,
		status:        StatusDisconnected,
		subscriptions: make(map[string]Subscription),
	}
	s.logger = logging.Component(o.logger, "session").WithFields(
		logging.String("session_id", s.id),
		logging.String("client_id", o.ClientID),
	)
	s.pipeline = o.pipeline
	if s.pipeline == nil {
		s.pipeline = middleware.New(middleware.WithLogger(s.logger))
	}

	t.On(protocol.TypeDisconnected, s.handleDisconnected)
	t.On(protocol.TypeError, s.handleServerError)
	return s
}

// ID returns the process-unique session id.
func (s *Session) ID() string { return s.id }

// ClientID returns the id announced to the server.
func (s *Session) ClientID() string { return s.opts.ClientID }

// Pipeline returns the middleware pipeline so callers can register
// interceptors.
func (s *Session) Pipeline() *middleware.Pipeline { return s.pipeline }

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ConnectionID returns the id minted by the server for the current
// connection.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionID
}

// ServerID returns the id of the server the session registered with.
func (s *Session) ServerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverID
}

// LastHeartbeat returns when the last heartbeat was sent.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeatAt
}

// ReconnectAttempt returns the number of reconnect attempts since the last
// successful connection.
func (s *Session) ReconnectAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectAttempt
}

// Subscriptions returns the active subscriptions ordered by id.
func (s *Session) Subscriptions() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptionsLocked()
}

func (s *Session) subscriptionsLocked() []Subscription {
	out := make([]Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnStatusChange registers a status listener and returns its remover.
func (s *Session) OnStatusChange(fn StatusListener) func() {
	return s.statusListeners.add(fn)
}

// OnError registers an error listener and returns its remover.
func (s *Session) OnError(fn ErrorListener) func() {
	return s.errorListeners.add(fn)
}

// Connect connects the transport to target and registers with the server.
// On failure error listeners are notified, the status becomes error and,
// with auto-reconnect enabled, a reconnect is scheduled; the error is
// returned either way. Connecting a connected session to the same target
// is a no-op; connecting it to another target first leaves the current
// server the way Disconnect does, keeping the subscription mirror for
// restore on the new one.
func (s *Session) Connect(ctx context.Context, target string) error {
	if err := s.opts.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.status == StatusConnected && s.target == target {
		s.mu.Unlock()
		return nil
	}
	s.epoch++
	ep := s.epoch
	from, retarget := s.target, s.status == StatusConnected
	s.target = target
	s.reconnectAttempt = 0
	rc := s.reconnect
	s.reconnect = nil
	if s.cancelAttempt != nil {
		s.cancelAttempt()
		s.cancelAttempt = nil
	}
	var hb *task
	connectionID := s.connectionID
	if retarget {
		hb = s.heartbeat
		s.heartbeat = nil
		s.closeLostLocked()
		s.setStatusLocked(StatusDisconnected)
		s.connectionID, s.serverID = "", ""
	}
	s.mu.Unlock()

	if rc != nil {
		rc.cancel()
	}
	if hb != nil {
		hb.cancel()
		<-hb.done
	}
	if retarget {
		if err := s.leave(ctx, connectionID, true); err != nil {
			s.logger.WithError(err).Debug("disconnect failed", logging.String("target", from))
		}
		s.notifyStatus(StatusDisconnected, StatusConnected)
		s.logger.Info("switching server", logging.String("from", from), logging.String("to", target))
	}

	err := s.attempt(ctx, ep)
	if err != nil {
		s.fail(ep, err)
	}
	return err
}

// attempt runs one connection handshake for epoch ep.
func (s *Session) attempt(ctx context.Context, ep uint64) error {
	s.mu.Lock()
	if s.epoch != ep {
		s.mu.Unlock()
		return sdkerrors.Cancelled("connect")
	}
	prev := s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()
	s.notifyStatus(StatusConnecting, prev)

	s.connectMu.Lock()
	restore, err := s.handshake(ctx, ep)
	s.connectMu.Unlock()
	if err != nil {
		return err
	}

	s.notifyStatus(StatusConnected, StatusConnecting)
	s.logger.Info("connected", logging.String("connection_id", s.ConnectionID()))
	s.restoreSubscriptions(ctx, restore)
	return nil
}

func (s *Session) handshake(ctx context.Context, ep uint64) ([]Subscription, error) {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.epoch != ep {
		s.mu.Unlock()
		return nil, sdkerrors.Cancelled("connect")
	}
	s.cancelAttempt = cancel
	target := s.target
	s.mu.Unlock()

	if err := s.transport.Connect(actx, target); err != nil {
		if _, typed := sdkerrors.AsTypedError(err); !typed {
			err = sdkerrors.ConnectionFailed(target, err)
		}
		return nil, err
	}

	params := protocol.RegisterParams{
		ClientID:     s.opts.ClientID,
		ClientType:   s.opts.ClientType,
		Capabilities: s.opts.Capabilities,
		Metadata:     s.opts.Metadata,
	}
	resp, err := s.send(actx, protocol.TypeRegister, params, nil)
	if err != nil {
		if actx.Err() != nil && s.superseded(ep) {
			return nil, sdkerrors.Cancelled("connect")
		}
		return nil, sdkerrors.RegistrationFailed(err.Error(), err)
	}
	result, err := protocol.Decode[protocol.RegisterResult](resp.Data)
	if err != nil {
		return nil, sdkerrors.RegistrationFailed("malformed $register result", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != ep {
		return nil, sdkerrors.Cancelled("connect")
	}
	s.cancelAttempt = nil
	s.connectionID = result.ConnectionID
	s.serverID = result.ServerID
	s.reconnectAttempt = 0
	s.lost = make(chan struct{})
	s.setStatusLocked(StatusConnected)
	s.startHeartbeatLocked(ep)
	return s.subscriptionsLocked(), nil
}

func (s *Session) superseded(ep uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch != ep
}

// restoreSubscriptions replays subscriptions after a reconnect. Failures
// are logged and do not stop the remaining restores.
func (s *Session) restoreSubscriptions(ctx context.Context, subs []Subscription) {
	for _, sub := range subs {
		params := protocol.SubscribeParams{Events: sub.Events, Filter: sub.Filter, SubscriptionID: sub.ID}
		if _, err := s.Request(ctx, protocol.TypeSubscribe, params); err != nil {
			s.logger.WithError(err).Warn("failed to restore subscription",
				logging.String("subscription_id", sub.ID),
			)
		}
	}
}

// fail records a connectivity fault for epoch ep: heartbeats stop, error
// listeners run, the status becomes error and a reconnect is scheduled
// when enabled. Faults from a stale epoch are ignored.
func (s *Session) fail(ep uint64, err error) {
	s.mu.Lock()
	if s.epoch != ep || s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	hb := s.heartbeat
	s.heartbeat = nil
	s.closeLostLocked()
	prev := s.setStatusLocked(StatusError)
	s.mu.Unlock()

	if hb != nil {
		hb.cancel()
	}
	s.logger.WithError(err).Warn("connection failed")
	s.notifyError(err)
	s.notifyStatus(StatusError, prev)

	if s.opts.AutoReconnect {
		s.scheduleReconnect(ep)
	}
}

func (s *Session) scheduleReconnect(ep uint64) {
	s.mu.Lock()
	if s.epoch != ep || s.status != StatusError {
		s.mu.Unlock()
		return
	}
	if max := s.opts.MaxReconnectAttempts; max > 0 && s.reconnectAttempt >= max {
		attempts, target := s.reconnectAttempt, s.target
		s.mu.Unlock()
		s.logger.Error("giving up reconnecting", logging.Int("attempts", attempts))
		s.notifyError(sdkerrors.ConnectionFailed(target, fmt.Errorf("gave up after %d reconnect attempts", attempts)))
		return
	}

	policy := s.opts.reconnectPolicy()
	delay := policy.Delay(s.reconnectAttempt)
	s.reconnectAttempt++
	attempt := s.reconnectAttempt
	t, ctx := newTask()
	s.reconnect = t
	prev := s.setStatusLocked(StatusReconnecting)
	s.mu.Unlock()

	s.notifyStatus(StatusReconnecting, prev)
	s.logger.Info("reconnect scheduled",
		logging.Int("attempt", attempt),
		logging.Duration("delay", delay),
	)

	go func() {
		defer close(t.done)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := s.attempt(ctx, ep); err != nil {
			s.fail(ep, err)
		}
	}()
}

// Disconnect stops the heartbeat and any pending reconnect, sends a
// best-effort $unregister, disconnects the transport and clears the
// session. It is idempotent.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.epoch++
	prev := s.status
	if s.cancelAttempt != nil {
		s.cancelAttempt()
		s.cancelAttempt = nil
	}
	hb, rc := s.heartbeat, s.reconnect
	s.heartbeat, s.reconnect = nil, nil
	s.closeLostLocked()
	s.setStatusLocked(StatusDisconnected)
	connectionID := s.connectionID
	s.connectionID, s.serverID = "", ""
	s.subscriptions = make(map[string]Subscription)
	s.reconnectAttempt = 0
	s.mu.Unlock()

	if rc != nil {
		rc.cancel()
	}
	if hb != nil {
		hb.cancel()
		<-hb.done
	}
	if prev == StatusDisconnected {
		return nil
	}

	err := s.leave(ctx, connectionID, prev == StatusConnected)
	s.notifyStatus(StatusDisconnected, prev)
	s.logger.Info("disconnected")
	if err != nil && !errors.Is(err, context.Canceled) {
		return sdkerrors.Wrap(err)
	}
	return nil
}

// leave sends a best-effort $unregister for connectionID when unregister
// is set and disconnects the transport.
func (s *Session) leave(ctx context.Context, connectionID string, unregister bool) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	if unregister {
		params := protocol.UnregisterParams{ClientID: s.opts.ClientID, ConnectionID: connectionID}
		if _, err := s.send(ctx, protocol.TypeUnregister, params, nil); err != nil {
			s.logger.WithError(err).Debug("unregister failed")
		}
	}
	return s.transport.Disconnect(ctx)
}

func (s *Session) closeLostLocked() {
	if s.lost != nil {
		close(s.lost)
		s.lost = nil
	}
}

func (s *Session) setStatusLocked(status Status) Status {
	prev := s.status
	s.status = status
	return prev
}

func (s *Session) startHeartbeatLocked(ep uint64) {
	interval := s.opts.HeartbeatInterval
	if interval <= 0 {
		return
	}
	t, ctx := newTask()
	s.heartbeat = t
	s.liveHeartbeats.Add(1)

	go func() {
		defer close(t.done)
		defer s.liveHeartbeats.Add(-1)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := s.beat(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				// Listeners may call Disconnect, which waits for this goroutine.
				go s.fail(ep, sdkerrors.ConnectionLost("heartbeat failed", err))
				return
			}
		}
	}()
}

func (s *Session) beat(ctx context.Context) error {
	now := time.Now()
	err := s.transport.Emit(ctx, protocol.TypeHeartbeat, protocol.HeartbeatParams{
		Timestamp: now.UnixMilli(),
		ClientID:  s.opts.ClientID,
	}, s.newContext())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastHeartbeatAt = now
	s.mu.Unlock()
	return nil
}

func (s *Session) notifyStatus(status, prev Status) {
	if status == prev {
		return
	}
	for _, fn := range s.statusListeners.snapshot() {
		s.safeNotify("status", func() { fn(status, prev) })
	}
}

func (s *Session) notifyError(err error) {
	for _, fn := range s.errorListeners.snapshot() {
		s.safeNotify("error", func() { fn(err) })
	}
}

func (s *Session) safeNotify(kind string, call func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked",
				logging.String("listener", kind),
				logging.Any("panic", r),
			)
		}
	}()
	call()
}

func (s *Session) handleDisconnected(_ context.Context, ev *protocol.Event) {
	reason := "server closed the connection"
	if p, err := protocol.Decode[protocol.DisconnectedEvent](ev.Payload); err == nil && p.Reason != "" {
		reason = p.Reason
	}
	s.mu.Lock()
	ep, connected := s.epoch, s.status == StatusConnected
	s.mu.Unlock()
	if connected {
		go s.fail(ep, sdkerrors.ConnectionLost(reason, nil))
	}
}

func (s *Session) handleServerError(_ context.Context, ev *protocol.Event) {
	p, err := protocol.Decode[protocol.ErrorEvent](ev.Payload)
	if err != nil {
		s.logger.WithError(err).Warn("malformed $error event")
		return
	}
	s.notifyError(sdkerrors.FromErrorObject(&protocol.ErrorObject{Code: p.Code, Message: p.Message, Details: p.Details}))
}
