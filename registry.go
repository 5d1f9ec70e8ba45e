package gateway

import (
	"fmt"
	"sort"
	"sync"
)

// Callback receives pushes for a channel. A returned error or a panic is
// reported to the ErrorHandler and never affects other observers.
type Callback func(p *Push) error

type observerEntry struct {
	observer Observer
	fn       Callback
	seq      uint64 // registration order
}

// subscriptionRegistry maps channel → observer → callback. A channel key
// exists only while at least one observer is registered for it.
type subscriptionRegistry struct {
	mu       sync.RWMutex
	channels map[string]map[Observer]observerEntry
	seq      uint64
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		channels: make(map[string]map[Observer]observerEntry),
	}
}

// register adds fn under channel for observer. A duplicate observer is an
// error and leaves the registry unchanged.
func (r *subscriptionRegistry) register(channel string, observer Observer, fn Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	observers, ok := r.channels[channel]
	if _, exists := observers[observer]; exists {
		return fmt.Errorf("%w: channel %q observer %s (unsubscribe first)", ErrDuplicateObserver, channel, observer)
	}
	if !ok {
		observers = make(map[Observer]observerEntry)
		r.channels[channel] = observers
	}
	r.seq++
	observers[observer] = observerEntry{observer: observer, fn: fn, seq: r.seq}
	return nil
}

// unregister removes observer from channel and reports whether the channel
// is now empty, in which case the server subscription must be dropped.
func (r *subscriptionRegistry) unregister(channel string, observer Observer) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	observers, ok := r.channels[channel]
	if !ok {
		return false, fmt.Errorf("%w: no observers on channel %q", ErrNotSubscribed, channel)
	}
	if _, ok := observers[observer]; !ok {
		return false, fmt.Errorf("%w: channel %q observer %s", ErrNotSubscribed, channel, observer)
	}
	delete(observers, observer)
	if len(observers) == 0 {
		delete(r.channels, channel)
		return true, nil
	}
	return false, nil
}

// rollback undoes a register whose server call failed. Unlike unregister
// it is silent when the entry is already gone.
func (r *subscriptionRegistry) rollback(channel string, observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	observers, ok := r.channels[channel]
	if !ok {
		return
	}
	delete(observers, observer)
	if len(observers) == 0 {
		delete(r.channels, channel)
	}
}

// channelNames returns the channels with at least one observer, sorted.
func (r *subscriptionRegistry) channelNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// observers returns a snapshot of channel's observers in registration
// order. It returns nil when nobody is subscribed.
func (r *subscriptionRegistry) observers(channel string) []observerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	observers := r.channels[channel]
	if len(observers) == 0 {
		return nil
	}
	entries := make([]observerEntry, 0, len(observers))
	for _, e := range observers {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

func (r *subscriptionRegistry) count(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}
