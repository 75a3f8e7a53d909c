// Package event broadcasts list lifecycle notifications to in-process listeners.
//
// EVENT KEYS:
// Every notification is delivered under two keys, in this order:
//
//	"save:<id>"  → listeners interested in one particular list
//	"save"       → listeners interested in every list
//
// and the same for "remove". A listener subscribes to whichever key it needs.
//
// DELIVERY:
// Delivery is synchronous: Notify returns only after every listener has run.
// Listeners are called once per event, in registration order. A listener
// that subscribes after an event was emitted never sees that event.
package event

import (
	"sync"

	"github.com/sakif/tasklists/internal/model"
)

// Kind is the lifecycle transition being announced.
type Kind string

const (
	Save   Kind = "save"
	Remove Kind = "remove"
)

// Key returns the subscription key for events of this kind scoped to one list id.
//
//	event.Save.Key("cv37rs3pp9olc6atsptg") → "save:cv37rs3pp9olc6atsptg"
func (k Kind) Key(id string) string {
	return string(k) + ":" + id
}

// Listener receives the list that was saved or removed.
// The list is shared with every other listener: treat it as read-only.
type Listener func(kind Kind, list *model.List)

// Notifier is the capability the store needs: announce that something happened.
// Accepting this interface (instead of *Relay) lets tests pass a recorder.
type Notifier interface {
	Notify(kind Kind, list *model.List)
}

// Relay is an in-process publish/subscribe hub for list events.
//
// CONCURRENCY:
// Many requests save lists at the same time, so the listener registry is
// guarded by a RWMutex. Notify copies the listeners it needs while holding
// the read lock and calls them after releasing it, so a listener may safely
// Subscribe or unsubscribe from inside its callback.
type Relay struct {
	mu        sync.RWMutex
	listeners map[string][]subscription
	nextID    uint64
}

type subscription struct {
	id uint64
	fn Listener
}

var _ Notifier = (*Relay)(nil)

// NewRelay creates an empty Relay. There is no limit on the number of listeners.
func NewRelay() *Relay {
	return &Relay{listeners: make(map[string][]subscription)}
}

// Subscribe registers fn under key ("save", "remove", or a scoped key from
// Kind.Key). It returns a function that removes the registration again.
func (r *Relay) Subscribe(key string, fn Listener) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners[key] = append(r.listeners[key], subscription{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(key, id) })
	}
}

func (r *Relay) remove(key string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.listeners[key]
	for i, s := range subs {
		if s.id == id {
			// Build a fresh slice so snapshots taken by Notify stay intact.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(r.listeners, key)
			} else {
				r.listeners[key] = next
			}
			return
		}
	}
}

// Notify delivers the event to the id-scoped listeners first, then to the
// unscoped ones.
func (r *Relay) Notify(kind Kind, list *model.List) {
	if list == nil {
		return
	}

	r.mu.RLock()
	scoped := r.listeners[kind.Key(list.ID)]
	global := r.listeners[string(kind)]
	r.mu.RUnlock()

	for _, s := range scoped {
		s.fn(kind, list)
	}
	for _, s := range global {
		s.fn(kind, list)
	}
}

// Len returns the number of listeners registered under key.
func (r *Relay) Len(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[key])
}
