package client

import (
	"sort"
	"sync"
)

// listenerSet holds callbacks keyed by registration so each can be removed
// on its own.
type listenerSet[T any] struct {
	mu    sync.RWMutex
	next  uint64
	items map[uint64]T
}

func (l *listenerSet[T]) add(fn T) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.items == nil {
		l.items = make(map[uint64]T)
	}
	l.next++
	id := l.next
	l.items[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.items, id)
	}
}

func (l *listenerSet[T]) snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]uint64, 0, len(l.items))
	for id := range l.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.items[id])
	}
	return out
}
