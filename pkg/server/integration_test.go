package server_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/session-sdk-go/pkg/client"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/server"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport/memory"
)

const address = "inproc://chat"

func newChatServer(t *testing.T, hub *memory.Hub) *server.Server {
	t.Helper()
	srv := server.New(hub.Server(), server.WithServerID("chat"))
	require.NoError(t, srv.HandleRequest("rooms.join", func(ctx context.Context, payload any, rctx *protocol.Context, clientID string) (any, error) {
		room, _ := payload.(string)
		if room == "" {
			return nil, sdkerrors.MissingField("rooms.join", "room")
		}
		return map[string]any{"room": room, "member": clientID}, nil
	}))
	require.NoError(t, srv.Start(context.Background(), address))
	return srv
}

type inbox struct {
	mu   sync.Mutex
	msgs []any
}

func (b *inbox) add(_ context.Context, ev *protocol.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, ev.Payload)
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

func TestSessionAgainstServer(t *testing.T) {
	hub := memory.NewHub()
	srv := newChatServer(t, hub)
	defer srv.Stop(context.Background())
	ctx := context.Background()

	alice := client.New(hub.Client(), client.WithClientID("alice"), client.WithHeartbeatInterval(20*time.Millisecond))
	bob := client.New(hub.Client(), client.WithClientID("bob"))
	require.NoError(t, alice.Connect(ctx, address))
	require.NoError(t, bob.Connect(ctx, address))
	defer alice.Disconnect(ctx)
	defer bob.Disconnect(ctx)

	assert.Equal(t, "chat", alice.ServerID())
	assert.Len(t, srv.Clients(), 2)

	resp, err := alice.Request(ctx, "rooms.join", "lobby")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"room": "lobby", "member": "alice"}, resp.Data)

	_, err = alice.Request(ctx, "rooms.join", "")
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeValidation))

	_, err = alice.Request(ctx, "rooms.leave", "lobby")
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeHandlerNotFound))

	bobInbox := &inbox{}
	bob.On("chat.message", bobInbox.add)
	_, err = bob.Subscribe(ctx, []string{"chat.message"}, nil)
	require.NoError(t, err)

	result := srv.Publish(ctx, "chat.message", "hi bob")
	assert.Equal(t, 1, result.Delivered)
	require.Eventually(t, func() bool { return bobInbox.len() == 1 }, time.Second, 5*time.Millisecond)

	aliceInbox := &inbox{}
	alice.On("announce", aliceInbox.add)
	bcast, err := client.Call[protocol.BroadcastResult](ctx, bob, protocol.TypeBroadcast, protocol.BroadcastParams{Event: "announce", Data: "hello all"})
	require.NoError(t, err)
	assert.Equal(t, 2, bcast.Delivered)
	require.Eventually(t, func() bool { return aliceInbox.len() == 1 }, time.Second, 5*time.Millisecond)

	ping, err := alice.Ping(ctx, nil)
	require.NoError(t, err)
	assert.Positive(t, ping.RoundTripTime)

	info, err := alice.GetServerInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.ConnectedClients)

	require.NoError(t, bob.Disconnect(ctx))
	require.Eventually(t, func() bool { return len(srv.Clients()) == 1 }, time.Second, 5*time.Millisecond)
	_, stillThere := srv.Client("bob")
	assert.False(t, stillThere)
}

func TestSessionSurvivesServerRestart(t *testing.T) {
	hub := memory.NewHub()
	srv := newChatServer(t, hub)
	ctx := context.Background()

	s := client.New(hub.Client(),
		client.WithClientID("alice"),
		client.WithHeartbeatInterval(10*time.Millisecond),
		client.WithReconnectInterval(10*time.Millisecond),
		client.WithReconnectBackoff(1, 0),
	)
	statuses := make(chan client.Status, 64)
	s.OnStatusChange(func(status, _ client.Status) {
		select {
		case statuses <- status:
		default:
		}
	})
	require.NoError(t, s.Connect(ctx, address))
	defer s.Disconnect(ctx)

	box := &inbox{}
	s.On("news", box.add)
	subID, err := s.Subscribe(ctx, []string{"news"}, nil)
	require.NoError(t, err)
	firstConn := s.ConnectionID()

	require.NoError(t, srv.Stop(ctx))
	require.Eventually(t, func() bool { return s.Status() != client.StatusConnected }, time.Second, 5*time.Millisecond)

	srv = newChatServer(t, hub)
	defer srv.Stop(ctx)

	require.Eventually(t, func() bool {
		return s.Status() == client.StatusConnected && len(srv.Subscriptions("alice")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, firstConn, s.ConnectionID())
	assert.Equal(t, subID, srv.Subscriptions("alice")[0].ID)
	assert.Zero(t, s.ReconnectAttempt())

	srv.Publish(ctx, "news", "back online")
	require.Eventually(t, func() bool { return box.len() == 1 }, time.Second, 5*time.Millisecond)

	seen := map[client.Status]bool{}
	for len(statuses) > 0 {
		seen[<-statuses] = true
	}
	assert.True(t, seen[client.StatusError])
	assert.True(t, seen[client.StatusReconnecting])
}

func TestExpiredClientReconnects(t *testing.T) {
	hub := memory.NewHub()
	srv := server.New(hub.Server(), server.WithClientTimeout(50*time.Millisecond), server.WithHeartbeatInterval(10*time.Millisecond))
	require.NoError(t, srv.Start(context.Background(), address))
	defer srv.Stop(context.Background())
	ctx := context.Background()

	// No heartbeats, so the server expires the session and tells it.
	s := client.New(hub.Client(),
		client.WithClientID("quiet"),
		client.WithHeartbeatInterval(0),
		client.WithReconnectInterval(time.Hour),
	)
	lost := make(chan error, 1)
	s.OnError(func(err error) {
		select {
		case lost <- err:
		default:
		}
	})
	require.NoError(t, s.Connect(ctx, address))
	defer s.Disconnect(ctx)

	select {
	case err := <-lost:
		assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeConnectionLost))
	case <-time.After(2 * time.Second):
		t.Fatal("expired session was not told")
	}
	require.Eventually(t, func() bool { return s.Status() == client.StatusReconnecting }, time.Second, 5*time.Millisecond)
	assert.Empty(t, srv.Clients())
}
