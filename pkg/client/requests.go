package client

import (
	"context"
	"errors"
	"time"

	"github.com/ajitpratap0/session-sdk-go/pkg/auth"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport"
)

var errNoResponse = errors.New("transport returned no response")

// PingResult reports a $ping round trip.
type PingResult struct {
	RoundTripTime time.Duration
	ServerTime    time.Time
	Payload       any
}

// Request sends a request through the pipeline and waits for its
// response. It always returns a response; when the response is not
// successful the error carries its typed classification. Requests fail
// with not_connected unless the session is connected, and are released
// with connection_lost when the session fails or disconnects while they
// are in flight.
func (s *Session) Request(ctx context.Context, requestType string, payload any) (*protocol.Response, error) {
	s.mu.Lock()
	status, lost := s.status, s.lost
	s.mu.Unlock()

	rctx := s.newContext()
	if status != StatusConnected {
		err := sdkerrors.NotConnected("request " + requestType)
		return protocol.NewErrorResponse(sdkerrors.ToErrorObject(err), rctx.Reply()), err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req := protocol.NewRequest(requestType, payload, rctx)
	resp := s.pipeline.Dispatch(ctx, req, func(ctx context.Context, r *protocol.Request) (*protocol.Response, error) {
		return s.roundTrip(ctx, r, lost)
	})
	if !resp.Success {
		return resp, sdkerrors.FromErrorObject(resp.Error)
	}
	return resp, nil
}

// Call sends a request and decodes the successful result into T.
func Call[T any](ctx context.Context, s *Session, requestType string, payload any) (T, error) {
	var zero T
	resp, err := s.Request(ctx, requestType, payload)
	if err != nil {
		return zero, err
	}
	out, err := protocol.Decode[T](resp.Data)
	if err != nil {
		return zero, sdkerrors.InvalidPayload(requestType, err)
	}
	return out, nil
}

func (s *Session) roundTrip(ctx context.Context, req *protocol.Request, lost <-chan struct{}) (*protocol.Response, error) {
	type result struct {
		resp *protocol.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := s.transport.Request(ctx, req.Type, req.Payload, req.Context)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, s.classify("request "+req.Type, r.err)
		}
		if r.resp == nil {
			return nil, sdkerrors.TransportError("request "+req.Type, errNoResponse)
		}
		return r.resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, sdkerrors.Timeout("request "+req.Type, 0)
		}
		return nil, sdkerrors.Cancelled("request " + req.Type)
	case <-lost:
		return nil, sdkerrors.ConnectionLost("session disconnected", nil)
	}
}

// send issues a request on the transport directly, bypassing the pipeline
// and the status check. It is used for the session's own handshake.
func (s *Session) send(ctx context.Context, requestType string, payload any, rctx *protocol.Context) (*protocol.Response, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if rctx == nil {
		rctx = s.newContext()
	}
	resp, err := s.transport.Request(ctx, requestType, payload, rctx)
	if err != nil {
		return nil, s.classify("request "+requestType, err)
	}
	if resp == nil {
		return nil, sdkerrors.TransportError("request "+requestType, errNoResponse)
	}
	if !resp.Success {
		return resp, sdkerrors.FromErrorObject(resp.Error)
	}
	return resp, nil
}

func (s *Session) classify(op string, err error) error {
	if _, ok := sdkerrors.AsTypedError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return sdkerrors.Timeout(op, 0)
	case errors.Is(err, context.Canceled):
		return sdkerrors.Cancelled(op)
	}
	return sdkerrors.TransportError(op, err)
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

func (s *Session) newContext() *protocol.Context {
	ctx := protocol.NewContext()
	ctx.Source = s.opts.ClientID
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token != "" {
		ctx.Auth = &protocol.AuthInfo{Token: token, Actor: s.opts.ClientID}
	}
	return ctx
}

// Emit sends a fire-and-forget event to the server.
func (s *Session) Emit(ctx context.Context, eventType string, payload any) error {
	if s.Status() != StatusConnected {
		return sdkerrors.NotConnected("emit " + eventType)
	}
	if err := s.transport.Emit(ctx, eventType, payload, s.newContext()); err != nil {
		return s.classify("emit "+eventType, err)
	}
	return nil
}

// On subscribes handler to inbound events of eventType. Events pass
// through the pipeline's event middleware first. The returned function
// removes the handler.
func (s *Session) On(eventType string, handler EventHandler) func() {
	id := s.transport.On(eventType, func(ctx context.Context, ev *protocol.Event) {
		err := s.pipeline.ProcessEvent(ctx, ev, func(ctx context.Context, ev *protocol.Event) error {
			handler(ctx, ev)
			return nil
		})
		if err != nil {
			s.logger.WithError(err).Warn("event handler failed", logging.String("type", eventType))
		}
	})
	return func() { s.transport.Off(eventType, id) }
}

// Subscribe asks the server to deliver events and mirrors the subscription
// locally so it is restored after a reconnect.
func (s *Session) Subscribe(ctx context.Context, events []string, filter any) (string, error) {
	if len(events) == 0 {
		return "", sdkerrors.MissingField(protocol.TypeSubscribe, "events")
	}
	s.mu.Lock()
	ep := s.epoch
	s.mu.Unlock()

	result, err := Call[protocol.SubscribeResult](ctx, s, protocol.TypeSubscribe, protocol.SubscribeParams{
		Events: events,
		Filter: filter,
	})
	if err != nil {
		return "", err
	}
	if result.SubscriptionID == "" {
		return "", sdkerrors.InvalidPayload(protocol.TypeSubscribe, errors.New("missing subscriptionId"))
	}

	s.mu.Lock()
	if s.epoch == ep {
		s.subscriptions[result.SubscriptionID] = Subscription{
			ID:     result.SubscriptionID,
			Events: append([]string(nil), events...),
			Filter: filter,
		}
	}
	s.mu.Unlock()
	return result.SubscriptionID, nil
}

// Unsubscribe cancels a subscription and drops it from the local mirror.
// A subscription the server no longer knows is dropped as well, and the
// subscription_not_found error is still returned.
func (s *Session) Unsubscribe(ctx context.Context, subscriptionID string) error {
	_, err := s.Request(ctx, protocol.TypeUnsubscribe, protocol.UnsubscribeParams{SubscriptionID: subscriptionID})
	if err != nil && !sdkerrors.IsCode(err, sdkerrors.CodeSubscriptionNotFound) {
		return err
	}
	s.mu.Lock()
	delete(s.subscriptions, subscriptionID)
	s.mu.Unlock()
	return err
}

// Ping measures the round trip of a $ping request.
func (s *Session) Ping(ctx context.Context, payload any) (PingResult, error) {
	start := time.Now()
	result, err := Call[protocol.PingResult](ctx, s, protocol.TypePing, protocol.PingParams{
		Timestamp: start.UnixMilli(),
		Payload:   payload,
	})
	if err != nil {
		return PingResult{}, err
	}
	return PingResult{
		RoundTripTime: time.Since(start),
		ServerTime:    time.UnixMilli(result.ServerTime),
		Payload:       result.Payload,
	}, nil
}

// GetServerInfo queries the server's identity and load.
func (s *Session) GetServerInfo(ctx context.Context) (protocol.ServerInfo, error) {
	return Call[protocol.ServerInfo](ctx, s, protocol.TypeServerInfo, nil)
}

// Login authenticates through the transport. The issued token is attached
// to every later envelope.
func (s *Session) Login(ctx context.Context, creds *auth.AuthRequest) (*auth.AuthResult, error) {
	res, err := s.transport.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.token = res.AccessToken
	s.mu.Unlock()
	return res, nil
}

// Logout revokes the token issued by Login.
func (s *Session) Logout(ctx context.Context) error {
	err := s.transport.Logout(ctx)
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return err
}

// Transport returns the underlying transport.
func (s *Session) Transport() transport.Transport { return s.transport }
