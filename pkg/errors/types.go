// Package errors provides typed errors for the session runtime. Every error
// that crosses a session boundary carries a stable string code, a type used
// for classification, a severity and a retry hint.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type classifies an error.
type Type string

const (
	TypeValidation Type = "VALIDATION"
	TypeBusiness   Type = "BUSINESS"
	TypeSystem     Type = "SYSTEM"
	TypeTransport  Type = "TRANSPORT"
	TypeUnexpected Type = "UNEXPECTED"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// TypedError is implemented by every error produced by this module.
type TypedError interface {
	error

	// Code returns the stable error code, e.g. "timeout".
	Code() string

	// Message returns the human-readable message.
	Message() string

	// Details returns additional technical detail, possibly empty.
	Details() string

	Type() Type
	Severity() Severity

	// Retryable reports whether repeating the operation may succeed.
	Retryable() bool

	// Metadata returns a copy of the structured metadata.
	Metadata() map[string]any

	// Timestamp returns when the error was created.
	Timestamp() time.Time

	WithDetail(detail string) TypedError
	WithMetadata(key string, value any) TypedError
	WithCause(err error) TypedError

	Unwrap() error

	// ToJSON returns the error as a JSON-serializable map.
	ToJSON() map[string]any
}

type baseError struct {
	code      string
	message   string
	details   string
	errType   Type
	severity  Severity
	retryable bool
	metadata  map[string]any
	cause     error
	timestamp time.Time
}

func (e *baseError) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s", e.message, e.details)
	}
	return e.message
}

func (e *baseError) Code() string         { return e.code }
func (e *baseError) Message() string      { return e.message }
func (e *baseError) Details() string      { return e.details }
func (e *baseError) Type() Type           { return e.errType }
func (e *baseError) Severity() Severity   { return e.severity }
func (e *baseError) Retryable() bool      { return e.retryable }
func (e *baseError) Timestamp() time.Time { return e.timestamp }
func (e *baseError) Unwrap() error        { return e.cause }

func (e *baseError) Metadata() map[string]any {
	return copyMap(e.metadata)
}

// Is matches another typed error with the same code, so errors.Is works
// against the values returned by the constructors in this package.
func (e *baseError) Is(target error) bool {
	t, ok := target.(TypedError)
	return ok && t.Code() == e.code
}

func (e *baseError) WithDetail(detail string) TypedError {
	out := e.clone()
	if out.details != "" {
		out.details = fmt.Sprintf("%s; %s", out.details, detail)
	} else {
		out.details = detail
	}
	return out
}

func (e *baseError) WithMetadata(key string, value any) TypedError {
	out := e.clone()
	if out.metadata == nil {
		out.metadata = make(map[string]any)
	}
	out.metadata[key] = value
	return out
}

func (e *baseError) WithCause(err error) TypedError {
	out := e.clone()
	out.cause = err
	return out
}

func (e *baseError) ToJSON() map[string]any {
	result := map[string]any{
		"code":      e.code,
		"message":   e.message,
		"type":      string(e.errType),
		"severity":  string(e.severity),
		"retryable": e.retryable,
		"timestamp": e.timestamp.UnixMilli(),
	}
	if e.details != "" {
		result["details"] = e.details
	}
	if len(e.metadata) > 0 {
		result["metadata"] = copyMap(e.metadata)
	}
	if e.cause != nil {
		result["cause"] = e.cause.Error()
	}
	return result
}

// MarshalJSON implements json.Marshaler.
func (e *baseError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

func (e *baseError) clone() *baseError {
	out := *e
	out.metadata = copyMap(e.metadata)
	return &out
}

// New creates a typed error from its parts.
func New(code, message string, errType Type, severity Severity, retryable bool) TypedError {
	return &baseError{
		code:      code,
		message:   message,
		errType:   errType,
		severity:  severity,
		retryable: retryable,
		timestamp: time.Now(),
	}
}

// Newf is New with a formatted message.
func Newf(code string, errType Type, severity Severity, retryable bool, format string, args ...any) TypedError {
	return New(code, fmt.Sprintf(format, args...), errType, severity, retryable)
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
