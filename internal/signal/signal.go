// Package signal provides a fire-once event with cancellable subscriptions.
//
// An Event delivers its payload to every subscriber registered before it
// fires, exactly once. Subscribers added after the event fired are not
// invoked; callers that need to observe a past firing use Done or Fired.
package signal

import "sync"

// Event is a one-shot notification carrying a payload of type T.
// The zero value is ready to use.
type Event[T any] struct {
	mu     sync.Mutex
	fired  bool
	value  T
	nextID uint64
	subs   []subscriber[T]
	done   chan struct{}
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it. Removing
// a subscriber from inside its own callback is allowed. Subscribing to an
// event that has already fired is a no-op.
func (e *Event[T]) Subscribe(fn func(T)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fired || fn == nil {
		return func() {}
	}
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscriber[T]{id: id, fn: fn})
	return func() { e.unsubscribe(id) }
}

func (e *Event[T]) unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Fire delivers value to the current subscribers. It returns false, and
// does nothing, if the event already fired.
func (e *Event[T]) Fire(value T) bool {
	e.mu.Lock()
	if e.fired {
		e.mu.Unlock()
		return false
	}
	e.fired = true
	e.value = value
	subs := e.subs
	e.subs = nil
	if e.done == nil {
		e.done = make(chan struct{})
	}
	close(e.done)
	e.mu.Unlock()

	// Callbacks run outside the lock so they may subscribe, cancel or
	// fire other events.
	for _, s := range subs {
		s.fn(value)
	}
	return true
}

// Fired reports whether the event fired and, if so, its payload.
func (e *Event[T]) Fired() (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.fired
}

// Done returns a channel closed when the event fires.
func (e *Event[T]) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		e.done = make(chan struct{})
	}
	return e.done
}

// Reset drops every subscriber without firing. The fired state is kept.
func (e *Event[T]) Reset() {
	e.mu.Lock()
	e.subs = nil
	e.mu.Unlock()
}

// Len returns the number of pending subscribers.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
