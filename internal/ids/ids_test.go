package ids

import (
	"strings"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewIsUniqueAndSorted(t *testing.T) {
	const n = 1000
	got := make([]string, n)
	for i := range got {
		got[i] = New()
	}

	for i := 1; i < n; i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("ids not strictly increasing at %d: %s <= %s", i, got[i], got[i-1])
		}
	}
	for _, id := range got {
		if _, err := ulid.Parse(id); err != nil {
			t.Fatalf("invalid ulid %q: %v", id, err)
		}
	}
}

func TestNewConcurrent(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				id := New()
				mu.Lock()
				if _, dup := seen[id]; dup {
					t.Errorf("duplicate id %s", id)
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("conn")
	if !strings.HasPrefix(id, "conn_") {
		t.Fatalf("expected conn_ prefix, got %s", id)
	}
}
