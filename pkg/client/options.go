package client

import (
	"time"

	"github.com/ajitpratap0/session-sdk-go/pkg/config"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/middleware"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	config.ClientOptions
	logger   logging.Logger
	pipeline *middleware.Pipeline
}

// WithOptions replaces every setting with opts.
func WithOptions(opts config.ClientOptions) Option {
	return func(o *options) {
		o.ClientOptions = opts
	}
}

// WithClientID sets the id announced in $register and stamped as the
// source of every envelope. Defaults to a random UUID.
func WithClientID(id string) Option {
	return func(o *options) {
		o.ClientID = id
	}
}

// WithClientType sets the client type announced in $register.
func WithClientType(clientType string) Option {
	return func(o *options) {
		o.ClientType = clientType
	}
}

// WithCapabilities sets the capabilities announced in $register.
func WithCapabilities(capabilities ...string) Option {
	return func(o *options) {
		o.Capabilities = append([]string(nil), capabilities...)
	}
}

// WithMetadata adds a metadata entry announced in $register.
func WithMetadata(key string, value any) Option {
	return func(o *options) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]any)
		}
		o.Metadata[key] = value
	}
}

// WithAutoReconnect enables or disables reconnecting after a failure.
func WithAutoReconnect(enabled bool) Option {
	return func(o *options) {
		o.AutoReconnect = enabled
	}
}

// WithReconnectInterval sets the delay before the first reconnect attempt.
func WithReconnectInterval(d time.Duration) Option {
	return func(o *options) {
		o.ReconnectInterval = d
	}
}

// WithReconnectBackoff multiplies the reconnect delay by factor after
// every failed attempt, up to maxDelay. A factor of 1 gives a fixed
// interval.
func WithReconnectBackoff(factor float64, maxDelay time.Duration) Option {
	return func(o *options) {
		o.ReconnectBackoff = factor
		o.MaxReconnectDelay = maxDelay
	}
}

// WithMaxReconnectAttempts bounds consecutive reconnect attempts. Zero
// means unbounded.
func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) {
		o.MaxReconnectAttempts = n
	}
}

// WithHeartbeatInterval sets the heartbeat period. Zero disables
// heartbeats.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) {
		o.HeartbeatInterval = d
	}
}

// WithRequestTimeout bounds requests whose context has no deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.RequestTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPipeline sets the pipeline outgoing requests and incoming events run
// through.
func WithPipeline(p *middleware.Pipeline) Option {
	return func(o *options) {
		o.pipeline = p
	}
}

func (o *options) reconnectPolicy() sdkerrors.RetryPolicy {
	return sdkerrors.RetryPolicy{
		InitialDelay:  o.ReconnectInterval,
		BackoffFactor: o.ReconnectBackoff,
		MaxDelay:      o.MaxReconnectDelay,
	}
}
