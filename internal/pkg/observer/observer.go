/*
Package observer implements a subject/observer registry.

Every Subscribe call gets its own Subscription handle, so the same callback can be
registered twice and each registration is removed independently. Notify iterates a
point-in-time copy of the observer list and never holds a lock while running a callback.
*/
package observer

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Subscription is the opaque handle returned by Registry.Subscribe.
type Subscription struct {
	active atomic.Bool
	remove func(*Subscription)
}

// Unsubscribe removes the observer. It is safe to call more than once and from
// inside a notification callback. Once it returns, the observer is not called again.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	if s.active.CompareAndSwap(true, false) && s.remove != nil {
		s.remove(s)
	}
}

// Active reports whether the subscription still receives notifications.
func (s *Subscription) Active() bool {
	return s != nil && s.active.Load()
}

type entry[T any] struct {
	sub *Subscription
	fn  func(T)
}

// Registry holds the ordered observer list for values of type T.
type Registry[T any] struct {
	mu      sync.Mutex
	entries []entry[T]

	// clone produces the independent copy each observer receives.
	clone func(T) T
}

// NewRegistry creates an empty registry. A nil clone hands the value through as is.
func NewRegistry[T any](clone func(T) T) *Registry[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Registry[T]{clone: clone}
}

// Subscribe appends fn to the observer list.
func (r *Registry[T]) Subscribe(fn func(T)) *Subscription {
	sub := &Subscription{remove: r.remove}
	sub.active.Store(true)

	r.mu.Lock()
	r.entries = append(r.entries, entry[T]{sub: sub, fn: fn})
	r.mu.Unlock()

	return sub
}

// remove recreates the observer list without sub, leaving any in-flight snapshot intact.
func (r *Registry[T]) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = slices.DeleteFunc(slices.Clone(r.entries), func(e entry[T]) bool {
		return e.sub == sub
	})
}

// Deliver invokes the observer behind sub with a copy of v, if it is still registered here.
func (r *Registry[T]) Deliver(sub *Subscription, v T) {
	r.mu.Lock()
	idx := slices.IndexFunc(r.entries, func(e entry[T]) bool { return e.sub == sub })
	var fn func(T)
	if idx >= 0 {
		fn = r.entries[idx].fn
	}
	r.mu.Unlock()

	if fn != nil && sub.Active() {
		fn(r.clone(v))
	}
}

// Notify calls every observer, in subscription order, each with its own copy of v.
func (r *Registry[T]) Notify(v T) {
	r.mu.Lock()
	snapshot := r.entries
	r.mu.Unlock()

	for _, e := range snapshot {
		if !e.sub.Active() {
			continue
		}
		e.fn(r.clone(v))
	}
}

// Len returns the number of registered observers.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear unsubscribes every observer.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	for _, e := range entries {
		e.sub.active.Store(false)
	}
}
