package server

import (
	"sort"
	"sync"
	"time"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
)

// Subscription is a client's interest in a set of events.
type Subscription struct {
	ID        string
	ClientID  string
	Events    []string
	Filter    any
	CreatedAt time.Time
}

// Matches reports whether the subscription covers event. The event name
// "*" subscribes to everything.
func (s Subscription) Matches(event string) bool {
	for _, e := range s.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// SubscriptionFilter decides whether a published payload reaches a
// subscription that matched by event name.
type SubscriptionFilter func(sub Subscription, event string, payload any) bool

// subscriptionIndex tracks subscriptions by id and by owning client.
type subscriptionIndex struct {
	mu       sync.RWMutex
	byID     map[string]*Subscription
	byClient map[string]map[string]struct{}
}

func newSubscriptionIndex() *subscriptionIndex {
	return &subscriptionIndex{
		byID:     make(map[string]*Subscription),
		byClient: make(map[string]map[string]struct{}),
	}
}

// add stores sub, replacing an earlier subscription with the same id when
// the same client owns it.
func (x *subscriptionIndex) add(sub Subscription) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if prev, ok := x.byID[sub.ID]; ok && prev.ClientID != sub.ClientID {
		return sdkerrors.ValidationError("subscription id " + sub.ID + " belongs to another client")
	}
	x.byID[sub.ID] = &sub
	ids, ok := x.byClient[sub.ClientID]
	if !ok {
		ids = make(map[string]struct{})
		x.byClient[sub.ClientID] = ids
	}
	ids[sub.ID] = struct{}{}
	return nil
}

// remove deletes the subscription id owned by clientID.
func (x *subscriptionIndex) remove(clientID, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	sub, ok := x.byID[id]
	if !ok || sub.ClientID != clientID {
		return sdkerrors.SubscriptionNotFound(id)
	}
	delete(x.byID, id)
	if ids := x.byClient[clientID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(x.byClient, clientID)
		}
	}
	return nil
}

// removeClient drops every subscription owned by clientID and returns how
// many there were.
func (x *subscriptionIndex) removeClient(clientID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := x.byClient[clientID]
	for id := range ids {
		delete(x.byID, id)
	}
	delete(x.byClient, clientID)
	return len(ids)
}

// forClient returns clientID's subscriptions ordered by id.
func (x *subscriptionIndex) forClient(clientID string) []Subscription {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Subscription, 0, len(x.byClient[clientID]))
	for id := range x.byClient[clientID] {
		out = append(out, *x.byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// matching groups the subscriptions covering event by client id.
func (x *subscriptionIndex) matching(event string) map[string][]Subscription {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[string][]Subscription)
	for _, sub := range x.byID {
		if sub.Matches(event) {
			out[sub.ClientID] = append(out[sub.ClientID], *sub)
		}
	}
	return out
}
