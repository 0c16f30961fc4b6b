package session

import (
	"github.com/ajitpratap0/session-sdk-go/pkg/client"
	"github.com/ajitpratap0/session-sdk-go/pkg/config"
	"github.com/ajitpratap0/session-sdk-go/pkg/server"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport/memory"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport/pubsub"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport/stream"
)

// Version represents the current version of the SDK
const Version = "0.1.0"

// These exports provide direct access to the core SDK components
var (
	// NewClient creates a client session over a transport
	NewClient = client.New

	// NewServer creates a server over a transport
	NewServer = server.New

	// NewMemoryHub creates an in-process hub for memory transports
	NewMemoryHub = memory.NewHub

	// NewStreamTransport creates a transport over a reader and writer
	NewStreamTransport = stream.New

	// NewPubSubTransport creates a transport over watermill topics
	NewPubSubTransport = pubsub.New

	// LoadConfig reads client and server options from a TOML file
	LoadConfig = config.LoadFile
)

// Core types
type (
	Session          = client.Session
	Status           = client.Status
	Server           = server.Server
	ClientConnection = server.ClientConnection
	ClientOptions    = config.ClientOptions
	ServerOptions    = config.ServerOptions
)

// Session statuses
const (
	StatusDisconnected = client.StatusDisconnected
	StatusConnecting   = client.StatusConnecting
	StatusConnected    = client.StatusConnected
	StatusReconnecting = client.StatusReconnecting
	StatusError        = client.StatusError
)

// Client options
var (
	WithClientID             = client.WithClientID
	WithClientType           = client.WithClientType
	WithClientCapabilities   = client.WithCapabilities
	WithClientMetadata       = client.WithMetadata
	WithClientOptions        = client.WithOptions
	WithAutoReconnect        = client.WithAutoReconnect
	WithReconnectInterval    = client.WithReconnectInterval
	WithReconnectBackoff     = client.WithReconnectBackoff
	WithMaxReconnectAttempts = client.WithMaxReconnectAttempts
	WithHeartbeatInterval    = client.WithHeartbeatInterval
	WithRequestTimeout       = client.WithRequestTimeout
	WithClientLogger         = client.WithLogger
	WithClientPipeline       = client.WithPipeline
)

// Server options
var (
	WithServerID           = server.WithServerID
	WithServerVersion      = server.WithVersion
	WithServerCapabilities = server.WithCapabilities
	WithServerOptions      = server.WithOptions
	WithClientTimeout      = server.WithClientTimeout
	WithServerHeartbeat    = server.WithHeartbeatInterval
	WithMaxClients         = server.WithMaxClients
	WithBroadcastWorkers   = server.WithBroadcastWorkers
	WithServerLogger       = server.WithLogger
	WithServerPipeline     = server.WithPipeline
	WithSubscriptionFilter = server.WithSubscriptionFilter
	WithConnectionObserver = server.WithConnectionObserver
)
