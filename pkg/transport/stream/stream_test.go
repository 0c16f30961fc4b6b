package stream

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// pair returns two connected transports.
func pair(t *testing.T) (*Transport, *Transport) {
	t.Helper()
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	a := New(r2, w1)
	b := New(r1, w2)
	require.NoError(t, a.Connect(context.Background(), "a"))
	require.NoError(t, b.Connect(context.Background(), "b"))
	t.Cleanup(func() {
		_ = a.Disconnect(context.Background())
		_ = b.Disconnect(context.Background())
	})
	return a, b
}

type greeting struct {
	Name string `json:"name"`
}

func TestRequestResponse(t *testing.T) {
	a, b := pair(t)
	b.HandleRequest("greet", func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
		in, err := protocol.Decode[greeting](req.Payload)
		if err != nil {
			return nil, err
		}
		return protocol.NewSuccessResponse("hello "+in.Name, req.Context.Reply()), nil
	})

	resp, err := a.Request(context.Background(), "greet", greeting{Name: "ada"}, nil)
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, "hello ada", resp.Data)

	resp, err = a.Request(context.Background(), "unknown", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, sdkerrors.CodeHandlerNotFound, resp.Error.Code)
}

func TestConcurrentRequests(t *testing.T) {
	a, b := pair(t)
	b.HandleRequest("echo", func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
		return protocol.NewSuccessResponse(req.Payload, req.Context.Reply()), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n float64) {
			defer wg.Done()
			resp, err := a.Request(context.Background(), "echo", n, nil)
			if assert.NoError(t, err) {
				assert.Equal(t, n, resp.Data)
			}
		}(float64(i))
	}
	wg.Wait()
}

func TestEvents(t *testing.T) {
	a, b := pair(t)
	got := make(chan *protocol.Event, 1)
	b.On("note", func(_ context.Context, ev *protocol.Event) { got <- ev })

	ectx := protocol.NewContext()
	ectx.Source = "alice"
	require.NoError(t, a.Emit(context.Background(), "note", map[string]any{"text": "hi"}, ectx))

	select {
	case ev := <-got:
		assert.Equal(t, "alice", ev.Context.Source)
		assert.Equal(t, ectx.ID, ev.Context.ID)
		assert.Equal(t, map[string]any{"text": "hi"}, ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRequestTimeout(t *testing.T) {
	a, b := pair(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	b.HandleRequest("slow", func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
		<-release
		return protocol.NewSuccessResponse(nil, req.Context.Reply()), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Request(ctx, "slow", nil, nil)
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeTimeout))
}

func TestDisconnectReleasesPending(t *testing.T) {
	a, b := pair(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	b.HandleRequest("slow", func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
		<-release
		return protocol.NewSuccessResponse(nil, req.Context.Reply()), nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := a.Request(context.Background(), "slow", nil, nil)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Disconnect(context.Background()))
	require.NoError(t, a.Disconnect(context.Background()))

	select {
	case err := <-errc:
		assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeNotConnected))
	case <-time.After(time.Second):
		t.Fatal("pending request not released")
	}

	assert.True(t, sdkerrors.IsCode(a.Emit(context.Background(), "x", nil, nil), sdkerrors.CodeNotConnected))
	assert.True(t, sdkerrors.IsCode(a.Connect(context.Background(), "a"), sdkerrors.CodeConnectionFailed))
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	input := strings.NewReader("not json\n\n" + `{"kind":"event","type":"ok","context":{"id":"1","timestamp":1}}` + "\n")
	tr := New(input, io.Discard)
	got := make(chan string, 1)
	tr.On("ok", func(_ context.Context, ev *protocol.Event) { got <- ev.Type })
	require.NoError(t, tr.Connect(context.Background(), "in"))

	select {
	case typ := <-got:
		assert.Equal(t, "ok", typ)
	case <-time.After(time.Second):
		t.Fatal("valid frame not delivered")
	}
	assert.Eventually(t, func() bool { return !tr.link.IsUp() }, time.Second, 5*time.Millisecond)
}
