package server

import (
	"time"

	"github.com/ajitpratap0/session-sdk-go/pkg/config"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/middleware"
)

// ConnectionObserver is told about registry changes, e.g. to maintain
// metrics.
type ConnectionObserver interface {
	ClientConnected(clientID string, total int)
	ClientDisconnected(clientID, reason string, total int)
}

// Option configures a Server.
type Option func(*options)

type options struct {
	config.ServerOptions
	logger    logging.Logger
	pipeline  *middleware.Pipeline
	filter    SubscriptionFilter
	observers []ConnectionObserver
	now       func() time.Time
}

// WithOptions replaces every setting with opts.
func WithOptions(opts config.ServerOptions) Option {
	return func(o *options) {
		o.ServerOptions = opts
	}
}

// WithServerID sets the id returned by $register and $serverInfo.
// Defaults to a generated id.
func WithServerID(id string) Option {
	return func(o *options) {
		o.ServerID = id
	}
}

// WithVersion sets the version reported by $serverInfo.
func WithVersion(version string) Option {
	return func(o *options) {
		o.Version = version
	}
}

// WithCapabilities sets the capabilities reported by $serverInfo.
func WithCapabilities(capabilities ...string) Option {
	return func(o *options) {
		o.Capabilities = append([]string(nil), capabilities...)
	}
}

// WithClientTimeout evicts clients that have not sent a heartbeat for d.
// Zero disables eviction.
func WithClientTimeout(d time.Duration) Option {
	return func(o *options) {
		o.ClientTimeout = d
	}
}

// WithHeartbeatInterval sets how often the liveness sweep runs.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) {
		o.HeartbeatInterval = d
	}
}

// WithMaxClients bounds the number of registered clients. Zero means no
// limit.
func WithMaxClients(n int) Option {
	return func(o *options) {
		o.MaxClients = n
	}
}

// WithBroadcastWorkers bounds concurrent sends during a fan-out.
func WithBroadcastWorkers(n int) Option {
	return func(o *options) {
		o.BroadcastWorkers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPipeline sets the pipeline inbound requests and events run through.
func WithPipeline(p *middleware.Pipeline) Option {
	return func(o *options) {
		o.pipeline = p
	}
}

// WithSubscriptionFilter sets the filter Publish applies to subscriptions
// that matched by event name. Without one every match receives the event.
func WithSubscriptionFilter(f SubscriptionFilter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// WithConnectionObserver adds an observer of registry changes.
func WithConnectionObserver(obs ConnectionObserver) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs)
	}
}
