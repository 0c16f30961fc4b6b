package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, DefaultClientOptions().Validate())
	require.NoError(t, DefaultServerOptions().Validate())
}

func TestParseOverlaysDefinedKeys(t *testing.T) {
	f, err := Parse(`
[client]
client_id = " worker-1 "
heartbeat_interval = "10s"
auto_reconnect = false
capabilities = ["chat", "files"]

[client.metadata]
region = "eu"

[server]
server_id = "hub"
client_timeout = "45s"
max_clients = 500
`)
	require.NoError(t, err)

	assert.Equal(t, "worker-1", f.Client.ClientID)
	assert.Equal(t, 10*time.Second, f.Client.HeartbeatInterval)
	assert.False(t, f.Client.AutoReconnect)
	assert.Equal(t, []string{"chat", "files"}, f.Client.Capabilities)
	assert.Equal(t, map[string]any{"region": "eu"}, f.Client.Metadata)
	assert.Equal(t, time.Second, f.Client.ReconnectInterval, "undefined keys keep defaults")
	assert.Equal(t, "go", f.Client.ClientType)

	assert.Equal(t, "hub", f.Server.ServerID)
	assert.Equal(t, 45*time.Second, f.Server.ClientTimeout)
	assert.Equal(t, 500, f.Server.MaxClients)
	assert.Equal(t, "1.0.0", f.Server.Version)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad duration", "[client]\nheartbeat_interval = \"soon\"\n"},
		{"unknown key", "[client]\nheartbeat = \"1s\"\n"},
		{"negative", "[server]\nmax_clients = -1\n"},
		{"syntax", "[client\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			assert.Error(t, err)
		})
	}
}

func TestValidateReportsField(t *testing.T) {
	opts := DefaultClientOptions()
	opts.ReconnectBackoff = 0.5
	err := opts.Validate()
	require.Error(t, err)
	te, ok := sdkerrors.AsTypedError(err)
	require.True(t, ok)
	assert.Equal(t, sdkerrors.CodeValidation, te.Code())
	assert.Equal(t, "client.reconnect_backoff", te.Metadata()["field"])
}

func TestSweepInterval(t *testing.T) {
	opts := DefaultServerOptions()
	assert.Zero(t, opts.SweepInterval())

	opts.ClientTimeout = 10 * time.Second
	assert.Equal(t, 5*time.Second, opts.SweepInterval())

	opts.HeartbeatInterval = 2 * time.Second
	assert.Equal(t, 2*time.Second, opts.SweepInterval())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nversion = \"2.0.0\"\n"), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", f.Server.Version)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
