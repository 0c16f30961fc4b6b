// Package stream implements a point-to-point transport over a byte stream
// such as stdio, a pipe or a socket. Messages travel as newline-delimited
// JSON frames.
package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/session-sdk-go/internal/ids"
	"github.com/ajitpratap0/session-sdk-go/pkg/auth"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport"
)

// DefaultMaxFrameSize bounds a single inbound frame.
const DefaultMaxFrameSize = 1 << 20

// eventBuffer is the number of inbound events queued ahead of the
// dispatcher before the read loop blocks.
const eventBuffer = 256

const (
	kindRequest  = "request"
	kindResponse = "response"
	kindEvent    = "event"
)

var errClosed = errors.New("stream closed")

type frame struct {
	Kind     string             `json:"kind"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Payload  any                `json:"payload,omitempty"`
	Context  *protocol.Context  `json:"context,omitempty"`
	Response *protocol.Response `json:"response,omitempty"`
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithAuthProvider makes Login and Logout use p.
func WithAuthProvider(p auth.AuthProvider) Option {
	return func(t *Transport) {
		t.Authenticator = transport.NewAuthenticator(p)
	}
}

// WithMaxFrameSize bounds a single inbound frame in bytes.
func WithMaxFrameSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxFrame = n
		}
	}
}

// Transport exchanges frames over a reader and writer. It is single-use:
// once the stream ends or Disconnect closes it, Connect fails.
type Transport struct {
	*transport.Handlers
	*transport.Authenticator

	reader   io.Reader
	writer   io.Writer
	maxFrame int
	logger   logging.Logger
	link     transport.Link

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *protocol.Response
	group   *errgroup.Group
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport reading frames from r and writing them to w. If
// r implements io.Closer, Disconnect closes it to stop the read loop.
func New(r io.Reader, w io.Writer, opts ...Option) *Transport {
	t := &Transport{
		reader:   r,
		writer:   w,
		maxFrame: DefaultMaxFrameSize,
		pending:  make(map[string]chan *protocol.Response),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.Component(t.logger, "stream-transport")
	t.Handlers = transport.NewHandlers(t.logger)
	if t.Authenticator == nil {
		t.Authenticator = transport.NewAuthenticator(nil)
	}
	return t
}

// Connect starts the read loop. The connection string only labels the
// link. Connecting twice is a no-op.
func (t *Transport) Connect(_ context.Context, connString string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return sdkerrors.ConnectionFailed(connString, errClosed)
	}
	if t.link.IsUp() {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	t.group = g
	t.cancel = cancel
	t.done = make(chan struct{})
	t.link.Up(connString)

	events := make(chan *protocol.Event, eventBuffer)
	g.Go(func() error {
		return t.readLoop(gctx, g, events)
	})
	g.Go(func() error {
		// Events run apart from the read loop so a handler may issue
		// requests without starving its own responses.
		for ev := range events {
			t.DispatchEvent(gctx, ev)
		}
		return nil
	})
	return nil
}

// Disconnect stops the read loop and releases pending requests with
// not_connected. It is idempotent.
func (t *Transport) Disconnect(context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	wasUp := t.link.Down()
	cancel, group := t.cancel, t.group
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !wasUp {
		return nil
	}
	t.shutdown()
	if c, ok := t.reader.(io.Closer); ok {
		_ = c.Close()
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.WithError(err).Debug("read loop ended")
		}
	}
	return nil
}

// shutdown fails every pending request and closes done exactly once.
func (t *Transport) shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
		return
	default:
	}
	close(t.done)
	t.pending = make(map[string]chan *protocol.Response)
}

func (t *Transport) Emit(_ context.Context, eventType string, payload any, ectx *protocol.Context) error {
	if err := t.link.Require("emit " + eventType); err != nil {
		return err
	}
	return t.write(&frame{
		Kind:    kindEvent,
		Type:    eventType,
		Payload: payload,
		Context: protocol.EnsureContext(ectx),
	})
}

func (t *Transport) Request(ctx context.Context, requestType string, payload any, rctx *protocol.Context) (*protocol.Response, error) {
	if err := t.link.Require("request " + requestType); err != nil {
		return nil, err
	}

	id := ids.New()
	reply := make(chan *protocol.Response, 1)
	t.mu.Lock()
	done := t.done
	t.pending[id] = reply
	t.mu.Unlock()
	defer t.forget(id)

	err := t.write(&frame{
		Kind:    kindRequest,
		ID:      id,
		Type:    requestType,
		Payload: payload,
		Context: protocol.EnsureContext(rctx),
	})
	if err != nil {
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

func (t *Transport) write(f *frame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		return sdkerrors.InvalidPayload(f.Type, err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return sdkerrors.TransportError("write "+f.Type, err)
	}
	return nil
}

func (t *Transport) readLoop(ctx context.Context, g *errgroup.Group, events chan<- *protocol.Event) error {
	defer func() {
		close(events)
		t.link.Down()
		t.shutdown()
	}()

	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), t.maxFrame)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var f frame
		if err := sonic.Unmarshal(line, &f); err != nil {
			t.logger.WithError(err).Warn("dropping malformed frame")
			continue
		}
		t.route(ctx, g, events, &f)
	}
	if err := scanner.Err(); err != nil {
		return sdkerrors.ConnectionLost("read failed", err)
	}
	return nil
}

func (t *Transport) route(ctx context.Context, g *errgroup.Group, events chan<- *protocol.Event, f *frame) {
	switch f.Kind {
	case kindRequest:
		req := protocol.NewRequest(f.Type, f.Payload, f.Context)
		g.Go(func() error {
			resp := t.Dispatch(ctx, req)
			if err := t.write(&frame{Kind: kindResponse, ID: f.ID, Type: f.Type, Response: resp}); err != nil {
				t.logger.WithError(err).Warn("failed to write response", logging.String("type", f.Type))
			}
			return nil
		})
	case kindResponse:
		t.mu.Lock()
		reply, ok := t.pending[f.ID]
		delete(t.pending, f.ID)
		t.mu.Unlock()
		if !ok || f.Response == nil {
			t.logger.Debug("dropping unmatched response", logging.String("id", f.ID))
			return
		}
		reply <- f.Response
	case kindEvent:
		select {
		case events <- protocol.NewEvent(f.Type, f.Payload, f.Context):
		case <-ctx.Done():
		}
	default:
		t.logger.Warn("dropping frame of unknown kind", logging.String("kind", f.Kind))
	}
}
