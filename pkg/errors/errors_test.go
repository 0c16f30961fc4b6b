package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

func TestBuiltinConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       TypedError
		wantCode  string
		wantType  Type
		retryable bool
	}{
		{"validation", ValidationError("bad"), CodeValidation, TypeValidation, false},
		{"handler not found", HandlerNotFound("chat.send"), CodeHandlerNotFound, TypeBusiness, false},
		{"client not found", ClientNotFound("c1"), CodeClientNotFound, TypeBusiness, false},
		{"not connected", NotConnected("request"), CodeNotConnected, TypeTransport, true},
		{"timeout", Timeout("chat.send", 0), CodeTimeout, TypeTransport, true},
		{"cancelled", Cancelled("request"), CodeCancelled, TypeSystem, false},
		{"unauthorized", Unauthorized("missing token"), CodeUnauthorized, TypeBusiness, false},
		{"max clients", MaxClientsReached(10), CodeMaxClients, TypeSystem, true},
		{"unexpected", Unexpected(fmt.Errorf("boom")), CodeUnexpected, TypeUnexpected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code())
			assert.Equal(t, tt.wantType, tt.err.Type())
			assert.Equal(t, tt.retryable, tt.err.Retryable())
			assert.NotEmpty(t, tt.err.Error())
			assert.False(t, tt.err.Timestamp().IsZero())
		})
	}
}

func TestMessageTemplating(t *testing.T) {
	assert.Equal(t, "No handler registered for chat.send", HandlerNotFound("chat.send").Message())
	assert.Equal(t, "hello world", FormatMessage("hello {name}", map[string]any{"name": "world"}))
	assert.Equal(t, "hello {name}", FormatMessage("hello {name}", map[string]any{"other": 1}))
	assert.Equal(t, "n=3", FormatMessage("n={n}", map[string]any{"n": 3}))
}

func TestWithHelpersCopy(t *testing.T) {
	orig := ValidationError("bad")
	withMeta := orig.WithMetadata("field", "name")
	withDetail := orig.WithDetail("more")

	assert.Nil(t, orig.Metadata())
	assert.Equal(t, "name", withMeta.Metadata()["field"])
	assert.Empty(t, orig.Details())
	assert.Equal(t, "more", withDetail.Details())

	cause := fmt.Errorf("root")
	wrapped := orig.WithCause(cause)
	assert.True(t, stderrors.Is(wrapped, cause))
}

func TestRegistryCreate(t *testing.T) {
	reg := NewDefaultRegistry()
	require.NoError(t, reg.Register(Definition{
		Code:            "order_missing",
		MessageTemplate: "Order {id} not found in {region}",
		Type:            TypeBusiness,
		Severity:        SeverityWarning,
		Retryable:       false,
		Metadata:        map[string]any{"team": "orders"},
	}))

	err := reg.Create("order_missing", map[string]any{"id": 42, "region": "eu"}, map[string]any{"trace": "t1"})
	assert.Equal(t, "order_missing", err.Code())
	assert.Equal(t, "Order 42 not found in eu", err.Message())
	assert.Equal(t, TypeBusiness, err.Type())
	assert.Equal(t, "orders", err.Metadata()["team"])
	assert.Equal(t, "t1", err.Metadata()["trace"])

	custom := reg.CreateWithMessage("order_missing", "custom text", nil)
	assert.Equal(t, "custom text", custom.Message())

	assert.Contains(t, reg.Codes(), CodeTimeout)
	assert.Contains(t, reg.Codes(), "order_missing")
}

func TestRegistryUnknownCode(t *testing.T) {
	reg := NewRegistry()
	err := reg.Create("nope", nil, nil)

	assert.Equal(t, "nope", err.Code())
	assert.Equal(t, TypeUnexpected, err.Type())
	assert.False(t, err.Retryable())

	err = reg.CreateWithMessage("nope", "explicit", nil)
	assert.Equal(t, "explicit", err.Message())
	assert.Equal(t, TypeUnexpected, err.Type())
}

func TestRegistryRejectsEmptyCode(t *testing.T) {
	err := NewRegistry().Register(Definition{})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeValidation))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))

	typed := Timeout("x", 0)
	assert.Same(t, typed, Wrap(fmt.Errorf("outer: %w", typed)).(*baseError))

	plain := Wrap(fmt.Errorf("plain"))
	assert.Equal(t, CodeUnexpected, plain.Code())
	assert.Equal(t, TypeUnexpected, plain.Type())
	assert.False(t, plain.Retryable())

	assert.Equal(t, CodeTimeout, Wrap(context.DeadlineExceeded).Code())
	assert.Equal(t, CodeCancelled, Wrap(context.Canceled).Code())
}

func TestPredicates(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotConnected("emit"))
	assert.True(t, IsCode(err, CodeNotConnected))
	assert.True(t, IsType(err, TypeTransport))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
	assert.True(t, stderrors.Is(err, NotConnected("other")))
}

func TestErrorObjectConversion(t *testing.T) {
	orig := ClientNotFound("c9").WithDetail("gone")
	obj := ToErrorObject(orig)
	require.NotNil(t, obj)
	assert.Equal(t, CodeClientNotFound, obj.Code)

	back := FromErrorObject(obj)
	assert.Equal(t, orig.Code(), back.Code())
	assert.Equal(t, orig.Message(), back.Message())
	assert.Equal(t, orig.Type(), back.Type())
	assert.Equal(t, orig.Retryable(), back.Retryable())
	assert.Equal(t, "gone", back.Details())
	assert.Equal(t, "c9", back.Metadata()["clientId"])

	assert.Nil(t, ToErrorObject(nil))
	assert.Nil(t, FromErrorObject(nil))
}

func TestFromErrorObjectWithoutDetails(t *testing.T) {
	known := FromErrorObject(&protocol.ErrorObject{Code: CodeTimeout, Message: "slow"})
	assert.Equal(t, TypeTransport, known.Type())
	assert.True(t, known.Retryable())
	assert.Equal(t, "slow", known.Message())

	unknown := FromErrorObject(&protocol.ErrorObject{Code: "mystery", Message: "?"})
	assert.Equal(t, TypeUnexpected, unknown.Type())
	assert.False(t, unknown.Retryable())
}
