// Package notify holds an ordered set of listeners with panic isolation.
package notify

import (
	"fmt"
	"sync"
)

// Registry delivers values to listeners synchronously, in subscription order.
type Registry[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []entry[T]

	// OnPanic is called with the recovered value when a listener panics.
	OnPanic func(recovered any)
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function removing it.
// Calling the returned function more than once is a no-op.
func (r *Registry[T]) Subscribe(fn func(T)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, entry[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, e := range r.listeners {
				if e.id == id {
					r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify calls every listener with v. A panicking listener is reported to
// OnPanic and does not prevent later listeners from running.
func (r *Registry[T]) Notify(v T) {
	r.mu.Lock()
	snapshot := make([]entry[T], len(r.listeners))
	copy(snapshot, r.listeners)
	onPanic := r.OnPanic
	r.mu.Unlock()

	for _, e := range snapshot {
		call(e.fn, v, onPanic)
	}
}

// Len returns the number of registered listeners.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

func call[T any](fn func(T), v T, onPanic func(any)) {
	defer func() {
		if rec := recover(); rec != nil && onPanic != nil {
			onPanic(rec)
		}
	}()
	fn(v)
}

// PanicError wraps a recovered listener panic for logging.
func PanicError(rec any) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("listener panic: %w", err)
	}
	return fmt.Errorf("listener panic: %v", rec)
}
