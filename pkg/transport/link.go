package transport

import (
	"sync"
	"time"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
)

// Link tracks whether a transport is connected and to what.
type Link struct {
	mu          sync.RWMutex
	connected   bool
	target      string
	connectedAt time.Time
}

// Up marks the link connected to target. It reports false when the link
// was already up.
func (l *Link) Up(target string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected {
		return false
	}
	l.connected = true
	l.target = target
	l.connectedAt = time.Now()
	return true
}

// Down marks the link disconnected and reports whether it was up.
func (l *Link) Down() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	was := l.connected
	l.connected = false
	return was
}

// IsUp reports whether the link is connected.
func (l *Link) IsUp() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Target returns the connection string of the current or last link.
func (l *Link) Target() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.target
}

// Since returns when the link came up.
func (l *Link) Since() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connectedAt
}

// Require returns a not_connected error for operation when the link is down.
func (l *Link) Require(operation string) error {
	if !l.IsUp() {
		return sdkerrors.NotConnected(operation)
	}
	return nil
}
