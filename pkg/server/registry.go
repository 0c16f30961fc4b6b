package server

import (
	"sort"
	"sync"
	"time"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
)

// ClientConnection is a registered client as seen by the server.
type ClientConnection struct {
	ClientID        string
	ConnectionID    string
	ClientType      string
	Capabilities    []string
	Metadata        map[string]any
	ConnectedAt     time.Time
	LastHeartbeatAt time.Time
}

// HasCapability reports whether the client announced capability.
func (c ClientConnection) HasCapability(capability string) bool {
	for _, have := range c.Capabilities {
		if have == capability {
			return true
		}
	}
	return false
}

// clientRegistry is the set of registered clients keyed by client id.
type clientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*ClientConnection
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{clients: make(map[string]*ClientConnection)}
}

// put inserts or replaces the entry for conn.ClientID. A new client id is
// refused once max entries exist; max <= 0 means no limit. It returns the
// entry that was replaced, if any.
func (r *clientRegistry) put(conn *ClientConnection, max int) (*ClientConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, exists := r.clients[conn.ClientID]
	if !exists && max > 0 && len(r.clients) >= max {
		return nil, sdkerrors.MaxClientsReached(max)
	}
	r.clients[conn.ClientID] = conn
	return prev, nil
}

// remove deletes clientID. A non-empty connectionID must match the current
// entry so a stale unregister cannot drop a newer connection.
func (r *clientRegistry) remove(clientID, connectionID string) (*ClientConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.clients[clientID]
	if !ok || (connectionID != "" && conn.ConnectionID != connectionID) {
		return nil, false
	}
	delete(r.clients, clientID)
	return conn, true
}

func (r *clientRegistry) get(clientID string) (ClientConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.clients[clientID]
	if !ok {
		return ClientConnection{}, false
	}
	return *conn, true
}

func (r *clientRegistry) touch(clientID string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.clients[clientID]
	if ok {
		conn.LastHeartbeatAt = at
	}
	return ok
}

func (r *clientRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// snapshot returns copies of every entry ordered by client id.
func (r *clientRegistry) snapshot() []ClientConnection {
	r.mu.RLock()
	out := make([]ClientConnection, 0, len(r.clients))
	for _, conn := range r.clients {
		out = append(out, *conn)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// evictBefore removes every entry whose last heartbeat is before cutoff.
func (r *clientRegistry) evictBefore(cutoff time.Time) []ClientConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []ClientConnection
	for id, conn := range r.clients {
		if conn.LastHeartbeatAt.Before(cutoff) {
			evicted = append(evicted, *conn)
			delete(r.clients, id)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].ClientID < evicted[j].ClientID })
	return evicted
}

func (r *clientRegistry) clear() []ClientConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ClientConnection, 0, len(r.clients))
	for _, conn := range r.clients {
		out = append(out, *conn)
	}
	r.clients = make(map[string]*ClientConnection)
	return out
}
