package protocol

import (
	"time"

	"github.com/google/uuid"
)

// AuthInfo carries credentials and the authenticated principal on an envelope.
type AuthInfo struct {
	Token string `json:"token,omitempty"`
	Actor string `json:"actor,omitempty"`
}

// Context is the metadata attached to every request, response and event.
type Context struct {
	ID           string         `json:"id"`
	Timestamp    int64          `json:"timestamp"`
	Source       string         `json:"source,omitempty"`
	Target       string         `json:"target,omitempty"`
	TraceID      string         `json:"traceId,omitempty"`
	SpanID       string         `json:"spanId,omitempty"`
	ParentSpanID string         `json:"parentSpanId,omitempty"`
	Auth         *AuthInfo      `json:"auth,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewContext returns a Context with a fresh identifier and the current time.
func NewContext() *Context {
	return &Context{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// EnsureContext returns a copy of c with ID and Timestamp filled in when
// they are empty. A nil c yields NewContext().
func EnsureContext(c *Context) *Context {
	if c == nil {
		return NewContext()
	}
	out := c.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.Timestamp == 0 {
		out.Timestamp = time.Now().UnixMilli()
	}
	return out
}

// Clone returns a deep copy of the context. Metadata values are copied
// shallowly.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	if c.Auth != nil {
		auth := *c.Auth
		out.Auth = &auth
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Reply derives the context of a response to a message carrying c. The
// identifier and trace fields are kept for correlation, the endpoints are
// swapped and the timestamp is refreshed.
func (c *Context) Reply() *Context {
	if c == nil {
		return NewContext()
	}
	out := c.Clone()
	out.Source, out.Target = c.Target, c.Source
	out.Timestamp = time.Now().UnixMilli()
	return out
}

// Time returns the context timestamp as a time.Time.
func (c *Context) Time() time.Time {
	if c == nil {
		return time.Time{}
	}
	return time.UnixMilli(c.Timestamp)
}

// SetMetadata stores a metadata entry, allocating the map on first use.
func (c *Context) SetMetadata(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
}

// Token returns the auth token carried by the context, if any.
func (c *Context) Token() string {
	if c == nil || c.Auth == nil {
		return ""
	}
	return c.Auth.Token
}

// Request is a typed message that expects exactly one Response.
type Request struct {
	Type    string   `json:"type"`
	Payload any      `json:"payload,omitempty"`
	Context *Context `json:"context"`
}

// Event is a fire-and-forget typed message.
type Event struct {
	Type    string   `json:"type"`
	Payload any      `json:"payload,omitempty"`
	Context *Context `json:"context"`
}

// ErrorObject is the wire form of a failed request.
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorObject) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// Response answers a Request. When Success is true Data holds the result,
// otherwise Error is set.
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
	Context *Context     `json:"context"`
}

// NewRequest builds a request, filling in context defaults.
func NewRequest(requestType string, payload any, ctx *Context) *Request {
	return &Request{
		Type:    requestType,
		Payload: payload,
		Context: EnsureContext(ctx),
	}
}

// NewEvent builds an event, filling in context defaults.
func NewEvent(eventType string, payload any, ctx *Context) *Event {
	return &Event{
		Type:    eventType,
		Payload: payload,
		Context: EnsureContext(ctx),
	}
}

// NewSuccessResponse builds a successful response.
func NewSuccessResponse(data any, ctx *Context) *Response {
	return &Response{
		Success: true,
		Data:    data,
		Context: EnsureContext(ctx),
	}
}

// NewErrorResponse builds a failed response.
func NewErrorResponse(errObj *ErrorObject, ctx *Context) *Response {
	return &Response{
		Success: false,
		Error:   errObj,
		Context: EnsureContext(ctx),
	}
}
