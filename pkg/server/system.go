package server

import (
	"context"

	"github.com/ajitpratap0/session-sdk-go/internal/ids"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

func (s *Server) installSystemHandlers() {
	s.handle(protocol.TypeRegister, s.handleRegister)
	s.handle(protocol.TypeUnregister, s.handleUnregister)
	s.handle(protocol.TypePing, s.handlePing)
	s.handle(protocol.TypeServerInfo, s.handleServerInfo)
	s.handle(protocol.TypeSubscribe, s.handleSubscribe)
	s.handle(protocol.TypeUnsubscribe, s.handleUnsubscribe)
	s.handle(protocol.TypeBroadcast, s.handleBroadcast)
	s.OnEvent(protocol.TypeHeartbeat, s.handleHeartbeat)
}

func decodeParams[T any](messageType string, payload any) (T, error) {
	var zero T
	if payload == nil {
		return zero, nil
	}
	out, err := protocol.Decode[T](payload)
	if err != nil {
		return zero, sdkerrors.InvalidPayload(messageType, err)
	}
	return out, nil
}

func (s *Server) handleRegister(ctx context.Context, payload any, _ *protocol.Context, source string) (any, error) {
	p, err := decodeParams[protocol.RegisterParams](protocol.TypeRegister, payload)
	if err != nil {
		return nil, err
	}
	if p.ClientID == "" {
		p.ClientID = source
	}
	if p.ClientID == "" {
		return nil, sdkerrors.MissingField(protocol.TypeRegister, "clientId")
	}

	now := s.opts.now()
	conn := &ClientConnection{
		ClientID:        p.ClientID,
		ConnectionID:    ids.New(),
		ClientType:      p.ClientType,
		Capabilities:    append([]string(nil), p.Capabilities...),
		Metadata:        p.Metadata,
		ConnectedAt:     now,
		LastHeartbeatAt: now,
	}
	prev, err := s.clients.put(conn, s.opts.MaxClients)
	if err != nil {
		s.logger.WithError(err).Warn("registration refused", logging.String("client_id", p.ClientID))
		return nil, err
	}
	if prev != nil {
		// A re-registering client restores its own subscriptions.
		s.subs.removeClient(p.ClientID)
	}
	s.logger.Info("client registered",
		logging.String("client_id", conn.ClientID),
		logging.String("connection_id", conn.ConnectionID),
		logging.Bool("replaced", prev != nil),
	)
	s.notifyConnected(conn.ClientID)

	welcome := protocol.ConnectedEvent{
		ClientID:     conn.ClientID,
		ConnectionID: conn.ConnectionID,
		ServerID:     s.opts.ServerID,
		ServerTime:   now.UnixMilli(),
	}
	if err := s.emitTo(ctx, conn.ClientID, protocol.TypeConnected, welcome, nil); err != nil {
		s.logger.WithError(err).Debug("failed to send $connected", logging.String("client_id", conn.ClientID))
	}

	return protocol.RegisterResult{
		ConnectionID: conn.ConnectionID,
		ServerID:     s.opts.ServerID,
		ServerTime:   now.UnixMilli(),
		TTL:          s.opts.ClientTimeout.Milliseconds(),
	}, nil
}

func (s *Server) handleUnregister(_ context.Context, payload any, _ *protocol.Context, source string) (any, error) {
	p, err := decodeParams[protocol.UnregisterParams](protocol.TypeUnregister, payload)
	if err != nil {
		return nil, err
	}
	if p.ClientID == "" {
		p.ClientID = source
	}
	if conn, ok := s.clients.remove(p.ClientID, p.ConnectionID); ok {
		s.subs.removeClient(conn.ClientID)
		s.logger.Info("client unregistered", logging.String("client_id", conn.ClientID))
		s.notifyDisconnected(conn.ClientID, "unregistered")
	}
	return protocol.AckResult{Success: true}, nil
}

func (s *Server) handlePing(_ context.Context, payload any, _ *protocol.Context, _ string) (any, error) {
	p, err := decodeParams[protocol.PingParams](protocol.TypePing, payload)
	if err != nil {
		return nil, err
	}
	return protocol.PingResult{
		Timestamp:  p.Timestamp,
		ServerTime: s.opts.now().UnixMilli(),
		Payload:    p.Payload,
	}, nil
}

func (s *Server) handleServerInfo(context.Context, any, *protocol.Context, string) (any, error) {
	return s.GetServerInfo(), nil
}

func (s *Server) handleSubscribe(_ context.Context, payload any, _ *protocol.Context, clientID string) (any, error) {
	p, err := decodeParams[protocol.SubscribeParams](protocol.TypeSubscribe, payload)
	if err != nil {
		return nil, err
	}
	if len(p.Events) == 0 {
		return nil, sdkerrors.MissingField(protocol.TypeSubscribe, "events")
	}
	if _, ok := s.clients.get(clientID); !ok {
		return nil, sdkerrors.ClientNotFound(clientID)
	}

	sub := Subscription{
		ID:        p.SubscriptionID,
		ClientID:  clientID,
		Events:    append([]string(nil), p.Events...),
		Filter:    p.Filter,
		CreatedAt: s.opts.now(),
	}
	if sub.ID == "" {
		sub.ID = ids.WithPrefix("sub")
	}
	if err := s.subs.add(sub); err != nil {
		return nil, err
	}
	// The client may have unregistered since the check above.
	if _, ok := s.clients.get(clientID); !ok {
		_ = s.subs.remove(clientID, sub.ID)
		return nil, sdkerrors.ClientNotFound(clientID)
	}
	s.logger.Debug("subscribed",
		logging.String("client_id", clientID),
		logging.String("subscription_id", sub.ID),
		logging.Any("events", sub.Events),
	)
	return protocol.SubscribeResult{SubscriptionID: sub.ID, Events: sub.Events}, nil
}

func (s *Server) handleUnsubscribe(_ context.Context, payload any, _ *protocol.Context, clientID string) (any, error) {
	p, err := decodeParams[protocol.UnsubscribeParams](protocol.TypeUnsubscribe, payload)
	if err != nil {
		return nil, err
	}
	if p.SubscriptionID == "" {
		return nil, sdkerrors.MissingField(protocol.TypeUnsubscribe, "subscriptionId")
	}
	if err := s.subs.remove(clientID, p.SubscriptionID); err != nil {
		return nil, err
	}
	return protocol.AckResult{Success: true}, nil
}

func (s *Server) handleBroadcast(ctx context.Context, payload any, _ *protocol.Context, _ string) (any, error) {
	p, err := decodeParams[protocol.BroadcastParams](protocol.TypeBroadcast, payload)
	if err != nil {
		return nil, err
	}
	if p.Event == "" {
		return nil, sdkerrors.MissingField(protocol.TypeBroadcast, "event")
	}
	if protocol.IsSystemType(p.Event) {
		return nil, sdkerrors.ValidationError("event " + p.Event + " is reserved")
	}
	return s.Broadcast(ctx, p.Event, p.Data), nil
}

func (s *Server) handleHeartbeat(_ context.Context, payload any, _ *protocol.Context, source string) error {
	p, err := decodeParams[protocol.HeartbeatParams](protocol.TypeHeartbeat, payload)
	if err != nil {
		return err
	}
	clientID := p.ClientID
	if clientID == "" {
		clientID = source
	}
	if !s.clients.touch(clientID, s.opts.now()) {
		s.logger.Debug("heartbeat from unregistered client", logging.String("client_id", clientID))
	}
	return nil
}
