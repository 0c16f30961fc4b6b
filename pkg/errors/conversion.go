package errors

import (
	"context"
	stderrors "errors"

	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// AsTypedError extracts a TypedError from err's chain.
func AsTypedError(err error) (TypedError, bool) {
	if err == nil {
		return nil, false
	}
	var te TypedError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Wrap converts any error into a TypedError. Typed errors are returned as
// is, context errors map to timeout and cancelled, and everything else
// becomes an UNEXPECTED error wrapping the original.
func Wrap(err error) TypedError {
	if err == nil {
		return nil
	}
	if te, ok := AsTypedError(err); ok {
		return te
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return Timeout("request", 0).WithCause(err)
	case stderrors.Is(err, context.Canceled):
		return Cancelled("request").WithCause(err)
	}
	return Unexpected(err)
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	te, ok := AsTypedError(err)
	return ok && te.Code() == code
}

// IsType reports whether err is a typed error of the given type.
func IsType(err error, t Type) bool {
	te, ok := AsTypedError(err)
	return ok && te.Type() == t
}

// IsRetryable reports whether err is a typed error marked retryable.
// Untyped errors are never retryable.
func IsRetryable(err error) bool {
	te, ok := AsTypedError(err)
	return ok && te.Retryable()
}

// ToErrorObject converts err into the wire error of a failed response.
// Classification travels in Details so the receiving side can rebuild an
// equivalent TypedError.
func ToErrorObject(err error) *protocol.ErrorObject {
	if err == nil {
		return nil
	}
	te := Wrap(err)
	details := map[string]any{
		"type":      string(te.Type()),
		"severity":  string(te.Severity()),
		"retryable": te.Retryable(),
	}
	if d := te.Details(); d != "" {
		details["details"] = d
	}
	if md := te.Metadata(); len(md) > 0 {
		details["metadata"] = md
	}
	return &protocol.ErrorObject{
		Code:    te.Code(),
		Message: te.Message(),
		Details: details,
	}
}

// FromErrorObject rebuilds a TypedError from a wire error. Classification
// is read from Details when present, otherwise from the built-in definition
// for the code; unknown codes become non-retryable UNEXPECTED errors.
func FromErrorObject(obj *protocol.ErrorObject) TypedError {
	if obj == nil {
		return nil
	}

	var err *baseError
	if def, ok := builtins[obj.Code]; ok {
		err = fromDefinition(def, obj.Message, nil)
	} else {
		err = unknownCode(obj.Code, nil).(*baseError)
		err.message = obj.Message
	}

	details, ok := obj.Details.(map[string]any)
	if !ok {
		return err
	}
	if v, ok := details["type"].(string); ok && v != "" {
		err.errType = Type(v)
	}
	if v, ok := details["severity"].(string); ok && v != "" {
		err.severity = Severity(v)
	}
	if v, ok := details["retryable"].(bool); ok {
		err.retryable = v
	}
	if v, ok := details["details"].(string); ok {
		err.details = v
	}
	if v, ok := details["metadata"].(map[string]any); ok {
		err.metadata = copyMap(v)
	}
	return err
}
