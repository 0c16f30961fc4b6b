package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// File is the decoded form of a configuration file:
//
//	[client]
//	client_id = "worker-1"
//	heartbeat_interval = "10s"
//
//	[server]
//	server_id = "hub"
//	client_timeout = "45s"
//	max_clients = 500
//
// Keys that are absent keep their defaults.
type File struct {
	Client ClientOptions
	Server ServerOptions
}

type fileConfig struct {
	Client clientTable `toml:"client"`
	Server serverTable `toml:"server"`
}

type clientTable struct {
	ClientID             string         `toml:"client_id"`
	ClientType           string         `toml:"client_type"`
	AutoReconnect        bool           `toml:"auto_reconnect"`
	ReconnectInterval    string         `toml:"reconnect_interval"`
	ReconnectBackoff     float64        `toml:"reconnect_backoff"`
	MaxReconnectDelay    string         `toml:"max_reconnect_delay"`
	MaxReconnectAttempts int            `toml:"max_reconnect_attempts"`
	HeartbeatInterval    string         `toml:"heartbeat_interval"`
	RequestTimeout       string         `toml:"request_timeout"`
	Capabilities         []string       `toml:"capabilities"`
	Metadata             map[string]any `toml:"metadata"`
}

type serverTable struct {
	ServerID          string   `toml:"server_id"`
	Version           string   `toml:"version"`
	Capabilities      []string `toml:"capabilities"`
	ClientTimeout     string   `toml:"client_timeout"`
	HeartbeatInterval string   `toml:"heartbeat_interval"`
	MaxClients        int      `toml:"max_clients"`
	BroadcastWorkers  int      `toml:"broadcast_workers"`
}

// LoadFile reads and validates the TOML file at path.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	f, err := Parse(string(data))
	if err != nil {
		return File{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a TOML document.
func Parse(doc string) (File, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return File{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return File{}, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	out := File{Client: DefaultClientOptions(), Server: DefaultServerOptions()}
	if err := applyClient(&out.Client, raw.Client, meta); err != nil {
		return File{}, err
	}
	if err := applyServer(&out.Server, raw.Server, meta); err != nil {
		return File{}, err
	}
	if err := out.Client.Validate(); err != nil {
		return File{}, err
	}
	if err := out.Server.Validate(); err != nil {
		return File{}, err
	}
	return out, nil
}

func applyClient(cfg *ClientOptions, raw clientTable, meta toml.MetaData) error {
	defined := func(key string) bool { return meta.IsDefined("client", key) }

	if defined("client_id") {
		cfg.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if defined("client_type") {
		cfg.ClientType = strings.TrimSpace(raw.ClientType)
	}
	if defined("auto_reconnect") {
		cfg.AutoReconnect = raw.AutoReconnect
	}
	if defined("reconnect_backoff") {
		cfg.ReconnectBackoff = raw.ReconnectBackoff
	}
	if defined("max_reconnect_attempts") {
		cfg.MaxReconnectAttempts = raw.MaxReconnectAttempts
	}
	if defined("capabilities") {
		cfg.Capabilities = raw.Capabilities
	}
	if defined("metadata") {
		cfg.Metadata = raw.Metadata
	}

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"reconnect_interval", raw.ReconnectInterval, &cfg.ReconnectInterval},
		{"max_reconnect_delay", raw.MaxReconnectDelay, &cfg.MaxReconnectDelay},
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.HeartbeatInterval},
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := parseDuration("client."+d.key, d.raw)
		if err != nil {
			return err
		}
		*d.target = v
	}
	return nil
}

func applyServer(cfg *ServerOptions, raw serverTable, meta toml.MetaData) error {
	defined := func(key string) bool { return meta.IsDefined("server", key) }

	if defined("server_id") {
		cfg.ServerID = strings.TrimSpace(raw.ServerID)
	}
	if defined("version") {
		cfg.Version = strings.TrimSpace(raw.Version)
	}
	if defined("capabilities") {
		cfg.Capabilities = raw.Capabilities
	}
	if defined("max_clients") {
		cfg.MaxClients = raw.MaxClients
	}
	if defined("broadcast_workers") {
		cfg.BroadcastWorkers = raw.BroadcastWorkers
	}

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"client_timeout", raw.ClientTimeout, &cfg.ClientTimeout},
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.HeartbeatInterval},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := parseDuration("server."+d.key, d.raw)
		if err != nil {
			return err
		}
		*d.target = v
	}
	return nil
}
