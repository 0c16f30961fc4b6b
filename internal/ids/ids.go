// Package ids mints process-unique identifiers for connections and subscriptions.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a time-sortable ULID. Successive calls within the same
// millisecond are strictly increasing, so values never collide in-process.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// WithPrefix returns New() prefixed with prefix and an underscore.
func WithPrefix(prefix string) string {
	return prefix + "_" + New()
}
