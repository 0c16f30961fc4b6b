// Package config holds the client and server option sets and loads them
// from TOML files.
package config

import (
	"fmt"
	"strings"
	"time"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
)

// ClientOptions configures a client session.
type ClientOptions struct {
	ClientID             string
	ClientType           string
	AutoReconnect        bool
	ReconnectInterval    time.Duration
	ReconnectBackoff     float64
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	RequestTimeout       time.Duration
	Capabilities         []string
	Metadata             map[string]any
}

// ServerOptions configures a session server.
type ServerOptions struct {
	ServerID          string
	Version           string
	Capabilities      []string
	ClientTimeout     time.Duration
	HeartbeatInterval time.Duration
	MaxClients        int
	BroadcastWorkers  int
}

// DefaultClientOptions returns reconnecting, heartbeating defaults. The
// client id is left empty so each session generates its own.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		ClientType:        "go",
		AutoReconnect:     true,
		ReconnectInterval: time.Second,
		ReconnectBackoff:  2,
		MaxReconnectDelay: 30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		RequestTimeout:    30 * time.Second,
		Metadata:          map[string]any{},
	}
}

// DefaultServerOptions returns defaults with no liveness sweep and no
// client limit.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Version:          "1.0.0",
		BroadcastWorkers: 16,
	}
}

// Validate reports the first invalid field.
func (o ClientOptions) Validate() error {
	switch {
	case o.ReconnectInterval < 0:
		return invalid("client.reconnect_interval", "must not be negative")
	case o.AutoReconnect && o.ReconnectInterval == 0:
		return invalid("client.reconnect_interval", "must be positive when auto_reconnect is set")
	case o.ReconnectBackoff != 0 && o.ReconnectBackoff < 1:
		return invalid("client.reconnect_backoff", "must be at least 1")
	case o.MaxReconnectDelay < 0:
		return invalid("client.max_reconnect_delay", "must not be negative")
	case o.MaxReconnectAttempts < 0:
		return invalid("client.max_reconnect_attempts", "must not be negative")
	case o.HeartbeatInterval < 0:
		return invalid("client.heartbeat_interval", "must not be negative")
	case o.RequestTimeout < 0:
		return invalid("client.request_timeout", "must not be negative")
	}
	return nil
}

// Validate reports the first invalid field.
func (o ServerOptions) Validate() error {
	switch {
	case o.ClientTimeout < 0:
		return invalid("server.client_timeout", "must not be negative")
	case o.HeartbeatInterval < 0:
		return invalid("server.heartbeat_interval", "must not be negative")
	case o.MaxClients < 0:
		return invalid("server.max_clients", "must not be negative")
	case o.BroadcastWorkers < 0:
		return invalid("server.broadcast_workers", "must not be negative")
	}
	return nil
}

// SweepInterval is how often the server scans for expired clients: the
// heartbeat interval, or half the client timeout when that is unset.
// Zero means no sweep.
func (o ServerOptions) SweepInterval() time.Duration {
	if o.ClientTimeout <= 0 {
		return 0
	}
	if o.HeartbeatInterval > 0 {
		return o.HeartbeatInterval
	}
	return o.ClientTimeout / 2
}

func invalid(field, reason string) error {
	return sdkerrors.ValidationError(fmt.Sprintf("%s %s", field, reason)).WithMetadata("field", field)
}

func parseDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, sdkerrors.ValidationError(fmt.Sprintf("parse %s: %v", field, err)).
			WithMetadata("field", field).
			WithCause(err)
	}
	return d, nil
}
