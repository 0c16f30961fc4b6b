package protocol

import "strings"

// Reserved message types.
const (
	TypeRegister     = "$register"
	TypeUnregister   = "$unregister"
	TypePing         = "$ping"
	TypeServerInfo   = "$serverInfo"
	TypeSubscribe    = "$subscribe"
	TypeUnsubscribe  = "$unsubscribe"
	TypeHeartbeat    = "$heartbeat"
	TypeBroadcast    = "$broadcast"
	TypeConnected    = "$connected"
	TypeDisconnected = "$disconnected"
	TypeError        = "$error"
)

// SystemPrefix marks reserved message types.
const SystemPrefix = "$"

// IsSystemType reports whether t is reserved for the runtime.
func IsSystemType(t string) bool {
	return strings.HasPrefix(t, SystemPrefix)
}

// RegisterParams is the payload of $register.
type RegisterParams struct {
	ClientID     string         `json:"clientId"`
	ClientType   string         `json:"clientType,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RegisterResult is returned by $register.
type RegisterResult struct {
	ConnectionID string `json:"connectionId"`
	ServerID     string `json:"serverId"`
	ServerTime   int64  `json:"serverTime"`
	// TTL is the server's client timeout in milliseconds, 0 when liveness
	// is not enforced.
	TTL int64 `json:"ttl,omitempty"`
}

// UnregisterParams is the payload of $unregister.
type UnregisterParams struct {
	ClientID     string `json:"clientId"`
	ConnectionID string `json:"connectionId,omitempty"`
}

// AckResult is returned by requests that only acknowledge.
type AckResult struct {
	Success bool `json:"success"`
}

// HeartbeatParams is the payload of the $heartbeat event.
type HeartbeatParams struct {
	Timestamp int64  `json:"timestamp"`
	ClientID  string `json:"clientId"`
}

// PingParams is the payload of $ping.
type PingParams struct {
	Timestamp int64 `json:"timestamp"`
	Payload   any   `json:"payload,omitempty"`
}

// PingResult is returned by $ping. Timestamp echoes the request.
type PingResult struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
	Payload    any   `json:"payload,omitempty"`
}

// SubscribeParams is the payload of $subscribe. A non-empty SubscriptionID
// asks the server to reuse an identifier issued earlier, which sessions do
// when restoring subscriptions after a reconnect.
type SubscribeParams struct {
	Events         []string `json:"events"`
	Filter         any      `json:"filter,omitempty"`
	SubscriptionID string   `json:"subscriptionId,omitempty"`
}

// SubscribeResult is returned by $subscribe.
type SubscribeResult struct {
	SubscriptionID string   `json:"subscriptionId"`
	Events         []string `json:"events"`
}

// UnsubscribeParams is the payload of $unsubscribe.
type UnsubscribeParams struct {
	SubscriptionID string `json:"subscriptionId"`
}

// ServerInfo is returned by $serverInfo. Uptime is in milliseconds.
type ServerInfo struct {
	ServerID         string   `json:"serverId"`
	Version          string   `json:"version"`
	Uptime           int64    `json:"uptime"`
	ConnectedClients int      `json:"connectedClients"`
	Capabilities     []string `json:"capabilities,omitempty"`
}

// BroadcastParams is the payload of $broadcast.
type BroadcastParams struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// BroadcastResult reports a fan-out outcome.
type BroadcastResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// ConnectedEvent is the payload of $connected.
type ConnectedEvent struct {
	ClientID     string `json:"clientId"`
	ConnectionID string `json:"connectionId"`
	ServerID     string `json:"serverId"`
	ServerTime   int64  `json:"serverTime"`
}

// DisconnectedEvent is the payload of $disconnected.
type DisconnectedEvent struct {
	ClientID string `json:"clientId,omitempty"`
	Reason   string `json:"reason"`
}

// ErrorEvent is the payload of $error.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
