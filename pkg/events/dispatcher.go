// Package events provides the typed publish/subscribe primitive shared by
// every stateful Voxwire component.
//
// A [Dispatcher] is parameterised over its payload type, so each event key
// (status changes, metrics, audio blocks, …) gets its own dispatcher and no
// payload type can cross keys. Delivery is synchronous and in subscription
// order; a panic inside one handler is caught and logged so that it neither
// reaches the emitter nor prevents the remaining handlers from running.
package events

import (
	"log/slog"
	"sync"
)

// Handler consumes a single emitted payload.
type Handler[T any] func(T)

// Subscription identifies a registered handler. Pass it to
// [Dispatcher.Unsubscribe] to remove the handler again.
type Subscription uint64

// Dispatcher is a typed publish/subscribe hub for one event key.
// The zero value is not usable; create instances with [NewDispatcher].
//
// All methods are safe for concurrent use.
type Dispatcher[T any] struct {
	name string

	mu      sync.Mutex
	nextID  Subscription
	entries []entry[T]
}

type entry[T any] struct {
	id   Subscription
	fn   Handler[T]
	once bool
}

// NewDispatcher creates a dispatcher. The name appears in log records when a
// handler panics (e.g. "audio.statusChange").
func NewDispatcher[T any](name string) *Dispatcher[T] {
	return &Dispatcher[T]{name: name}
}

// Subscribe registers fn and returns its subscription handle. Handlers are
// invoked in subscription order on every [Dispatcher.Emit].
func (d *Dispatcher[T]) Subscribe(fn Handler[T]) Subscription {
	return d.add(fn, false)
}

// Once registers fn for a single delivery. The handler is removed before it
// is invoked, so an emit performed inside the handler cannot re-enter it.
func (d *Dispatcher[T]) Once(fn Handler[T]) Subscription {
	return d.add(fn, true)
}

func (d *Dispatcher[T]) add(fn Handler[T], once bool) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.entries = append(d.entries, entry[T]{id: id, fn: fn, once: once})
	return id
}

// Unsubscribe removes the handler identified by sub. Unknown or already
// removed handles are ignored.
func (d *Dispatcher[T]) Unsubscribe(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.id == sub {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return
		}
	}
}

// Emit delivers payload to all current subscribers synchronously, in
// subscription order. One-shot handlers are unsubscribed first. A panicking
// handler is isolated: the panic is logged and the remaining handlers still
// run.
func (d *Dispatcher[T]) Emit(payload T) {
	d.mu.Lock()
	snapshot := make([]entry[T], len(d.entries))
	copy(snapshot, d.entries)
	kept := d.entries[:0]
	for _, e := range d.entries {
		if !e.once {
			kept = append(kept, e)
		}
	}
	d.entries = kept
	d.mu.Unlock()

	for _, e := range snapshot {
		d.invoke(e.fn, payload)
	}
}

func (d *Dispatcher[T]) invoke(fn Handler[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "event", d.name, "panic", r)
		}
	}()
	fn(payload)
}

// Reset removes all subscribers. Used by component cleanup.
func (d *Dispatcher[T]) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
}

// Len returns the number of current subscribers.
func (d *Dispatcher[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
