package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

func newPair(t *testing.T) (srv, cli *Transport) {
	t.Helper()
	bus := NewGoChannel(nil)
	t.Cleanup(func() { _ = bus.Close() })

	var err error
	srv, err = New(Config{Publisher: bus, Subscriber: bus, Role: RoleServer})
	require.NoError(t, err)
	cli, err = New(Config{Publisher: bus, Subscriber: bus})
	require.NoError(t, err)

	require.NoError(t, srv.Connect(context.Background(), "chat"))
	require.NoError(t, cli.Connect(context.Background(), "chat"))
	t.Cleanup(func() {
		_ = cli.Disconnect(context.Background())
		_ = srv.Disconnect(context.Background())
	})
	return srv, cli
}

func from(source string) *protocol.Context {
	c := protocol.NewContext()
	c.Source = source
	return c
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeValidation))

	bus := NewGoChannel(nil)
	defer bus.Close()
	_, err = New(Config{Publisher: bus, Subscriber: bus, Role: "peer"})
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeValidation))
}

func TestRequestReply(t *testing.T) {
	srv, cli := newPair(t)
	srv.HandleRequest("sum", func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
		nums, err := protocol.Decode[[]float64](req.Payload)
		if err != nil {
			return nil, err
		}
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return protocol.NewSuccessResponse(total, req.Context.Reply()), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := cli.Request(ctx, "sum", []float64{1, 2, 3}, from("alice"))
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, 6.0, resp.Data)

	resp, err = cli.Request(ctx, "missing", nil, from("alice"))
	require.NoError(t, err)
	assert.Equal(t, sdkerrors.CodeHandlerNotFound, resp.Error.Code)
}

func TestTargetedAndBroadcastEvents(t *testing.T) {
	srv, cli := newPair(t)
	got := make(chan *protocol.Event, 4)
	cli.On("news", func(_ context.Context, ev *protocol.Event) { got <- ev })

	target := protocol.NewContext()
	target.Target = "alice"
	err := srv.Emit(context.Background(), "news", nil, target)
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeClientNotFound))

	seen := make(chan struct{}, 1)
	srv.On("hello", func(context.Context, *protocol.Event) { seen <- struct{}{} })
	require.NoError(t, cli.Emit(context.Background(), "hello", nil, from("alice")))
	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive hello")
	}

	require.NoError(t, srv.Emit(context.Background(), "news", "direct", target))
	require.NoError(t, srv.Emit(context.Background(), "news", "everyone", nil))

	var payloads []any
	for len(payloads) < 2 {
		select {
		case ev := <-got:
			payloads = append(payloads, ev.Payload)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %v", payloads)
		}
	}
	assert.ElementsMatch(t, []any{"direct", "everyone"}, payloads)
}

func TestDisconnectReleasesPending(t *testing.T) {
	srv, cli := newPair(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	srv.HandleRequest("slow", func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
		<-release
		return protocol.NewSuccessResponse(nil, req.Context.Reply()), nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := cli.Request(context.Background(), "slow", nil, from("alice"))
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, cli.Disconnect(context.Background()))

	select {
	case err := <-errc:
		assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeNotConnected))
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not released")
	}
	assert.True(t, sdkerrors.IsCode(cli.Emit(context.Background(), "x", nil, nil), sdkerrors.CodeNotConnected))
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return assert.AnError }
func (failingPublisher) Close() error                              { return nil }

func TestPublishFailure(t *testing.T) {
	bus := NewGoChannel(nil)
	defer bus.Close()
	cli, err := New(Config{Publisher: failingPublisher{}, Subscriber: bus})
	require.NoError(t, err)
	require.NoError(t, cli.Connect(context.Background(), "chat"))
	defer cli.Disconnect(context.Background())

	err = cli.Emit(context.Background(), "x", nil, nil)
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeTransport))
	_, err = cli.Request(context.Background(), "x", nil, nil)
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeTransport))
}
