// Package pubsub carries sessions over watermill topics, so any broker
// watermill supports (Kafka, NATS, AMQP, or an in-process Go channel) can
// connect clients to a server.
//
// For an address A and topic prefix P a server consumes P.A.server, each
// client consumes its own inbox P.A.client.<id> plus P.A.broadcast.
// Requests carry the sender's inbox so the reply can find its way back.
package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/session-sdk-go/internal/ids"
	"github.com/ajitpratap0/session-sdk-go/pkg/auth"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport"
)

// Role selects which side of a session a Transport plays.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// DefaultTopicPrefix namespaces topics when Config.TopicPrefix is empty.
const DefaultTopicPrefix = "session"

const (
	kindRequest  = "request"
	kindResponse = "response"
	kindEvent    = "event"

	metadataKind = "session_kind"
	eventBuffer  = 256
)

var errNoPublisher = errors.New("publisher and subscriber are required")

type frame struct {
	Kind     string             `json:"kind"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	ReplyTo  string             `json:"replyTo,omitempty"`
	Payload  any                `json:"payload,omitempty"`
	Context  *protocol.Context  `json:"context,omitempty"`
	Response *protocol.Response `json:"response,omitempty"`
}

// Config configures a Transport.
type Config struct {
	Publisher    message.Publisher
	Subscriber   message.Subscriber
	Role         Role
	TopicPrefix  string
	Logger       logging.Logger
	AuthProvider auth.AuthProvider
}

// Transport implements transport.Transport over a watermill Publisher and
// Subscriber. It never closes them; their owner does.
type Transport struct {
	*transport.Handlers
	*transport.Authenticator

	pub    message.Publisher
	sub    message.Subscriber
	role   Role
	prefix string
	id     string
	logger logging.Logger
	link   transport.Link

	mu      sync.Mutex
	pending map[string]chan *protocol.Response
	routes  map[string]string
	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport. Role defaults to RoleClient.
func New(cfg Config) (*Transport, error) {
	if cfg.Publisher == nil || cfg.Subscriber == nil {
		return nil, sdkerrors.ValidationError(errNoPublisher.Error())
	}
	if cfg.Role == "" {
		cfg.Role = RoleClient
	}
	if cfg.Role != RoleClient && cfg.Role != RoleServer {
		return nil, sdkerrors.ValidationError("unknown pubsub role " + string(cfg.Role))
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	id := ids.New()
	logger := logging.Component(cfg.Logger, "pubsub-transport").WithFields(
		logging.String("role", string(cfg.Role)),
		logging.String("endpoint", id),
	)
	return &Transport{
		Handlers:      transport.NewHandlers(logger),
		Authenticator: transport.NewAuthenticator(cfg.AuthProvider),
		pub:           cfg.Publisher,
		sub:           cfg.Subscriber,
		role:          cfg.Role,
		prefix:        cfg.TopicPrefix,
		id:            id,
		logger:        logger,
		pending:       make(map[string]chan *protocol.Response),
		routes:        make(map[string]string),
	}, nil
}

// ID returns the endpoint identifier used in the client inbox topic.
func (t *Transport) ID() string {
	return t.id
}

func (t *Transport) serverTopic(addr string) string    { return t.prefix + "." + addr + ".server" }
func (t *Transport) broadcastTopic(addr string) string { return t.prefix + "." + addr + ".broadcast" }
func (t *Transport) inboxTopic(addr string) string {
	return t.prefix + "." + addr + ".client." + t.id
}

func (t *Transport) ownTopic() string {
	addr := t.link.Target()
	if t.role == RoleServer {
		return t.serverTopic(addr)
	}
	return t.inboxTopic(addr)
}

// Connect subscribes to the topics of address. Connecting an already
// connected transport is a no-op.
func (t *Transport) Connect(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return sdkerrors.Wrap(err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link.IsUp() {
		return nil
	}

	topics := []string{t.serverTopic(address)}
	if t.role == RoleClient {
		topics = []string{t.inboxTopic(address), t.broadcastTopic(address)}
	}

	subCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(subCtx)
	events := make(chan *protocol.Event, eventBuffer)
	var consumers sync.WaitGroup

	for _, topic := range topics {
		msgs, err := t.sub.Subscribe(subCtx, topic)
		if err != nil {
			cancel()
			return sdkerrors.ConnectionFailed(address, err)
		}
		consumers.Add(1)
		g.Go(func() error {
			defer consumers.Done()
			t.consume(gctx, g, msgs, events)
			return nil
		})
	}
	g.Go(func() error {
		consumers.Wait()
		close(events)
		return nil
	})
	g.Go(func() error {
		for ev := range events {
			t.DispatchEvent(gctx, ev)
		}
		return nil
	})

	t.cancel = cancel
	t.group = g
	t.done = make(chan struct{})
	t.routes = make(map[string]string)
	t.link.Up(address)
	t.logger.Debug("subscribed", logging.Any("topics", topics))
	return nil
}

// Disconnect cancels the subscriptions, waits for the consumers to stop
// and releases pending requests with not_connected. It is idempotent.
func (t *Transport) Disconnect(context.Context) error {
	t.mu.Lock()
	if !t.link.Down() {
		t.mu.Unlock()
		return nil
	}
	cancel, group, done := t.cancel, t.group, t.done
	t.pending = make(map[string]chan *protocol.Response)
	t.mu.Unlock()

	close(done)
	cancel()
	return group.Wait()
}

func (t *Transport) Emit(_ context.Context, eventType string, payload any, ectx *protocol.Context) error {
	if err := t.link.Require("emit " + eventType); err != nil {
		return err
	}
	f := &frame{
		Kind:    kindEvent,
		Type:    eventType,
		Payload: payload,
		Context: protocol.EnsureContext(ectx),
	}

	topic := t.serverTopic(t.link.Target())
	if t.role == RoleServer {
		if f.Context.Target == "" {
			topic = t.broadcastTopic(t.link.Target())
		} else {
			route, err := t.route(f.Context.Target)
			if err != nil {
				return err
			}
			topic = route
		}
	} else {
		f.ReplyTo = t.ownTopic()
	}
	return t.publish(topic, f)
}

func (t *Transport) Request(ctx context.Context, requestType string, payload any, rctx *protocol.Context) (*protocol.Response, error) {
	if err := t.link.Require("request " + requestType); err != nil {
		return nil, err
	}
	f := &frame{
		Kind:    kindRequest,
		ID:      ids.New(),
		Type:    requestType,
		Payload: payload,
		Context: protocol.EnsureContext(rctx),
		ReplyTo: t.ownTopic(),
	}

	topic := t.serverTopic(t.link.Target())
	if t.role == RoleServer {
		if f.Context.Target == "" {
			return nil, sdkerrors.ValidationError("server request " + requestType + " has no target")
		}
		route, err := t.route(f.Context.Target)
		if err != nil {
			return nil, err
		}
		topic = route
	}

	reply := make(chan *protocol.Response, 1)
	t.mu.Lock()
	done := t.done
	t.pending[f.ID] = reply
	t.mu.Unlock()
	defer t.forget(f.ID)

	if err := t.publish(topic, f); err != nil {
		return nil, err
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, sdkerrors.Timeout(requestType, 0)
		}
		return nil, sdkerrors.Cancelled(requestType)
	case <-done:
		return nil, sdkerrors.NotConnected("request " + requestType)
	}
}

func (t *Transport) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
}

func (t *Transport) route(target string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	topic, ok := t.routes[target]
	if !ok {
		return "", sdkerrors.ClientNotFound(target)
	}
	return topic, nil
}

func (t *Transport) learn(source, replyTo string) {
	if t.role != RoleServer || source == "" || replyTo == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[source] = replyTo
}

func (t *Transport) publish(topic string, f *frame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		return sdkerrors.InvalidPayload(f.Type, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metadataKind, f.Kind)
	if err := t.pub.Publish(topic, msg); err != nil {
		return sdkerrors.TransportError("publish "+f.Type, err)
	}
	return nil
}

func (t *Transport) consume(ctx context.Context, g *errgroup.Group, msgs <-chan *message.Message, events chan<- *protocol.Event) {
	for msg := range msgs {
		var f frame
		if err := sonic.Unmarshal(msg.Payload, &f); err != nil {
			t.logger.WithError(err).Warn("dropping malformed message", logging.String("uuid", msg.UUID))
			msg.Ack()
			continue
		}
		msg.Ack()
		t.dispatch(ctx, g, &f, events)
	}
}

func (t *Transport) dispatch(ctx context.Context, g *errgroup.Group, f *frame, events chan<- *protocol.Event) {
	switch f.Kind {
	case kindRequest:
		if f.Context != nil {
			t.learn(f.Context.Source, f.ReplyTo)
		}
		req := protocol.NewRequest(f.Type, f.Payload, f.Context)
		g.Go(func() error {
			resp := t.Dispatch(ctx, req)
			if f.ReplyTo == "" {
				return nil
			}
			out := &frame{Kind: kindResponse, ID: f.ID, Type: f.Type, Response: resp}
			if err := t.publish(f.ReplyTo, out); err != nil {
				t.logger.WithError(err).Warn("failed to publish response", logging.String("type", f.Type))
			}
			return nil
		})
	case kindResponse:
		t.mu.Lock()
		reply, ok := t.pending[f.ID]
		delete(t.pending, f.ID)
		t.mu.Unlock()
		if ok && f.Response != nil {
			reply <- f.Response
		}
	case kindEvent:
		if f.Context != nil {
			t.learn(f.Context.Source, f.ReplyTo)
		}
		select {
		case events <- protocol.NewEvent(f.Type, f.Payload, f.Context):
		case <-ctx.Done():
		}
	default:
		t.logger.Warn("dropping message of unknown kind", logging.String("kind", f.Kind))
	}
}
