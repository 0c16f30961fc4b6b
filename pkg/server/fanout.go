package server

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// SendToClient emits an event to one registered client.
func (s *Server) SendToClient(ctx context.Context, clientID, eventType string, payload any) error {
	if _, ok := s.clients.get(clientID); !ok {
		return sdkerrors.ClientNotFound(clientID)
	}
	return s.emitTo(ctx, clientID, eventType, payload, nil)
}

// Broadcast emits an event to every registered client. Each send is
// independent: a failing client is logged and counted, the others still
// receive the event.
func (s *Server) Broadcast(ctx context.Context, eventType string, payload any) protocol.BroadcastResult {
	conns := s.clients.snapshot()
	targets := make([]string, len(conns))
	for i, conn := range conns {
		targets[i] = conn.ClientID
	}
	return s.fanOut(ctx, targets, eventType, payload, nil)
}

// Publish emits an event to every client holding a subscription that
// covers it and passes the subscription filter. The ids of the matching
// subscriptions travel in the "subscriptionIds" context metadata.
func (s *Server) Publish(ctx context.Context, eventType string, payload any) protocol.BroadcastResult {
	matches := s.subs.matching(eventType)
	subIDs := make(map[string][]string, len(matches))
	targets := make([]string, 0, len(matches))
	for clientID, subs := range matches {
		for _, sub := range subs {
			if s.opts.filter != nil && !s.safeFilter(sub, eventType, payload) {
				continue
			}
			subIDs[clientID] = append(subIDs[clientID], sub.ID)
		}
		if len(subIDs[clientID]) > 0 {
			sort.Strings(subIDs[clientID])
			targets = append(targets, clientID)
		}
	}
	sort.Strings(targets)
	return s.fanOut(ctx, targets, eventType, payload, func(clientID string) map[string]any {
		return map[string]any{"subscriptionIds": subIDs[clientID]}
	})
}

func (s *Server) safeFilter(sub Subscription, eventType string, payload any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscription filter panicked",
				logging.String("subscription_id", sub.ID),
				logging.Any("panic", r),
			)
			ok = false
		}
	}()
	return s.opts.filter(sub, eventType, payload)
}

// fanOut emits to every target with at most BroadcastWorkers sends in
// flight.
func (s *Server) fanOut(ctx context.Context, targets []string, eventType string, payload any, metadata func(clientID string) map[string]any) protocol.BroadcastResult {
	var delivered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.opts.BroadcastWorkers)
	for _, clientID := range targets {
		clientID := clientID
		g.Go(func() error {
			var md map[string]any
			if metadata != nil {
				md = metadata(clientID)
			}
			if err := s.emitTo(ctx, clientID, eventType, payload, md); err != nil {
				failed.Add(1)
				s.logger.WithError(err).Warn("delivery failed",
					logging.String("client_id", clientID),
					logging.String("type", eventType),
				)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result := protocol.BroadcastResult{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
	s.logger.Debug("fan-out complete",
		logging.String("type", eventType),
		logging.Int("delivered", result.Delivered),
		logging.Int("failed", result.Failed),
	)
	return result
}

// emitTo sends one targeted event. A panicking transport is reported as an
// unexpected error.
func (s *Server) emitTo(ctx context.Context, clientID, eventType string, payload any, metadata map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = sdkerrors.Unexpected(fmt.Errorf("panic while emitting %s: %v", eventType, r))
		}
	}()
	ectx := protocol.NewContext()
	ectx.Source = s.opts.ServerID
	ectx.Target = clientID
	for k, v := range metadata {
		ectx.SetMetadata(k, v)
	}
	return s.transport.Emit(ctx, eventType, payload, ectx)
}
