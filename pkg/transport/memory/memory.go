// Package memory implements an in-process transport. A Hub routes traffic
// between one listening server endpoint per address and any number of
// client endpoints.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ajitpratap0/session-sdk-go/internal/ids"
	"github.com/ajitpratap0/session-sdk-go/pkg/auth"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport"
)

// DefaultMailboxSize is the number of undelivered events an endpoint holds
// before Emit to it fails.
const DefaultMailboxSize = 256

var (
	errNoListener    = errors.New("no server listening")
	errAddressInUse  = errors.New("address already in use")
	errMailboxFull   = errors.New("receiver mailbox full")
	errServerStopped = errors.New("server stopped")
)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithAuthProvider makes endpoint Login and Logout use p.
func WithAuthProvider(p auth.AuthProvider) HubOption {
	return func(h *Hub) {
		h.provider = p
	}
}

// WithLogger sets the logger shared by the hub's endpoints.
func WithLogger(l logging.Logger) HubOption {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithMailboxSize sets the per-endpoint event buffer.
func WithMailboxSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.mailboxSize = n
		}
	}
}

// Hub connects endpoints living in the same process.
type Hub struct {
	mu          sync.RWMutex
	servers     map[string]*Endpoint
	provider    auth.AuthProvider
	logger      logging.Logger
	mailboxSize int
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		servers:     make(map[string]*Endpoint),
		mailboxSize: DefaultMailboxSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.Component(h.logger, "memory-transport")
	return h
}

// Server creates an endpoint whose Connect listens on an address.
func (h *Hub) Server() *Endpoint {
	return h.newEndpoint(roleServer)
}

// Client creates an endpoint whose Connect attaches to a listening server.
func (h *Hub) Client() *Endpoint {
	return h.newEndpoint(roleClient)
}

// Addresses returns the addresses with a listening server.
func (h *Hub) Addresses() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.servers))
	for addr := range h.servers {
		out = append(out, addr)
	}
	return out
}

func (h *Hub) newEndpoint(r role) *Endpoint {
	id := ids.WithPrefix(r.String())
	return &Endpoint{
		Handlers:      transport.NewHandlers(h.logger),
		Authenticator: transport.NewAuthenticator(h.provider),
		hub:           h,
		role:          r,
		id:            id,
		logger:        h.logger.WithFields(logging.String("endpoint", id)),
	}
}

func (h *Hub) listen(addr string, e *Endpoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.servers[addr]; ok && cur != e {
		return sdkerrors.ConnectionFailed(addr, errAddressInUse)
	}
	h.servers[addr] = e
	return nil
}

func (h *Hub) unlisten(addr string, e *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.servers[addr] == e {
		delete(h.servers, addr)
	}
}

func (h *Hub) lookup(addr string) *Endpoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.servers[addr]
}

// Register adds "memory" to reg. The "role" option selects "server" or
// "client" (the default).
func Register(reg *transport.Registry, h *Hub) error {
	return reg.Register("memory", func(options map[string]any) (transport.Transport, error) {
		role, _ := options["role"].(string)
		switch role {
		case "", "client":
			return h.Client(), nil
		case "server":
			return h.Server(), nil
		default:
			return nil, sdkerrors.ValidationError(fmt.Sprintf("unknown memory transport role %q", role))
		}
	})
}
