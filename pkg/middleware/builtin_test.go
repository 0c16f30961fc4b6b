package middleware

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

func TestValidationRejectsBeforeHandler(t *testing.T) {
	rec := &recorder{}
	p := New()
	p.UseFor("chat.send", Validation(RequiredFields(map[string][]string{
		"chat.send": {"room", "text"},
	})))

	resp := p.ProcessRequest(context.Background(),
		protocol.NewRequest("chat.send", map[string]any{"room": "lobby"}, nil), echoHandler(rec))

	require.False(t, resp.Success)
	assert.Equal(t, sdkerrors.CodeValidation, resp.Error.Code)
	assert.Equal(t, "text", sdkerrors.FromErrorObject(resp.Error).Metadata()["field"])
	assert.Empty(t, rec.get())

	ok := p.ProcessRequest(context.Background(),
		protocol.NewRequest("chat.send", map[string]any{"room": "lobby", "text": "hi"}, nil), echoHandler(rec))
	assert.True(t, ok.Success)
	assert.Equal(t, []string{"handler"}, rec.get())
}

func TestValidationStructPayload(t *testing.T) {
	type message struct {
		Room string `json:"room"`
		Text string `json:"text,omitempty"`
	}
	v := RequiredFields(map[string][]string{"chat.send": {"text"}})

	err := v.Validate(context.Background(), "chat.send", message{Room: "a"})
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeValidation))

	assert.NoError(t, v.Validate(context.Background(), "chat.send", &message{Room: "a", Text: "b"}))
	assert.NoError(t, v.Validate(context.Background(), "unlisted", nil))

	err = v.Validate(context.Background(), "chat.send", "not an object")
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeInvalidPayload))
}

func TestValidationWrapsPlainErrors(t *testing.T) {
	p := New()
	p.Use(Validation(ValidatorFunc(func(context.Context, string, any) error {
		return fmt.Errorf("payload too large")
	})))

	resp := p.ProcessRequest(context.Background(), protocol.NewRequest("x", nil, nil), echoHandler(nil))
	require.False(t, resp.Success)
	assert.Equal(t, sdkerrors.CodeValidation, resp.Error.Code)
}

func TestEventValidationDrops(t *testing.T) {
	p := New()
	p.UseEvent(EventValidation(ValidatorFunc(func(context.Context, string, any) error {
		return sdkerrors.ValidationError("nope")
	}), nil))

	called := false
	require.NoError(t, p.ProcessEvent(context.Background(), protocol.NewEvent("x", nil, nil),
		func(context.Context, *protocol.Event) error { called = true; return nil }))
	assert.False(t, called)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	f := logging.NewTextFormatter()
	f.DisableColors = true
	logger := logging.New(&buf, f)

	p := New()
	p.Use(Logging(logger))
	p.UseEvent(EventLogging(logger))

	p.ProcessRequest(context.Background(), protocol.NewRequest("ok", nil, &protocol.Context{ID: "env-1"}), echoHandler(nil))
	p.ProcessRequest(context.Background(), protocol.NewRequest("bad", nil, nil),
		func(context.Context, *protocol.Request) (any, error) { return nil, sdkerrors.ValidationError("x") })

	out := buf.String()
	assert.Contains(t, out, "[env-1]")
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "request failed")
	assert.Contains(t, out, "error_code=validation_error")
	assert.Equal(t, 2, strings.Count(out, "requests: "))
}

func TestTimeoutMiddleware(t *testing.T) {
	p := New()
	p.Use(Timeout(20 * time.Millisecond))

	slow := p.ProcessRequest(context.Background(), protocol.NewRequest("slow", nil, nil),
		func(ctx context.Context, _ *protocol.Request) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return "late", nil
			}
		})
	require.False(t, slow.Success)
	assert.Equal(t, sdkerrors.CodeTimeout, slow.Error.Code)

	fast := p.ProcessRequest(context.Background(), protocol.NewRequest("fast", 1, nil), echoHandler(nil))
	assert.True(t, fast.Success)
}
