package custody

import (
	"runtime/debug"
)

// Shared is a scoped read capability for one entry. Any number of
// Shared accessors for the same ID may be live at once, but never
// alongside an Exclusive. Obtain via Store.Borrow, use within the
// calling scope, and Release before any conflicting request can be
// serviced.
//
// A Shared accessor must not be stored beyond the scope that obtained
// it. Using one after Release yields ErrConflict.
type Shared[T any] struct {
	store *Store[T]
	id    ID
	sl    *slot[T]

	// released is guarded by store.mu.
	released bool
}

// ID returns the entry this accessor reads.
func (a *Shared[T]) ID() ID {
	return a.id
}

// Value returns a copy of the entry's current value.
func (a *Shared[T]) Value() (T, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if a.released {
		var zero T
		return zero, &AccessError{Op: "value", ID: a.id, Err: ErrConflict}
	}
	return a.sl.value, nil
}

// Release returns the read capability to the store. Idempotent; safe
// to call from a defer on every exit path.
func (a *Shared[T]) Release() {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	a.sl.readers--
	if a.sl.readers == 0 {
		a.store.notifyLocked(a.sl)
	}
}

// Exclusive is a scoped write capability for one entry. At most one
// Exclusive accessor for an ID may be live, and never alongside any
// Shared accessor. Obtain via Store.BorrowMut.
//
// Prefer Store.Update over holding an Exclusive open: it narrows the
// window during which exclusivity is held and guarantees release on
// every exit path.
type Exclusive[T any] struct {
	store *Store[T]
	id    ID
	sl    *slot[T]

	// released is guarded by store.mu.
	released bool
}

// ID returns the entry this accessor owns.
func (a *Exclusive[T]) ID() ID {
	return a.id
}

// Value returns a copy of the entry's current value.
func (a *Exclusive[T]) Value() (T, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if a.released {
		var zero T
		return zero, &AccessError{Op: "value", ID: a.id, Err: ErrConflict}
	}
	return a.sl.value, nil
}

// Set replaces the entry's value.
func (a *Exclusive[T]) Set(value T) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if a.released {
		return &AccessError{Op: "set", ID: a.id, Err: ErrConflict}
	}
	a.sl.value = value
	return nil
}

// Mutate applies fn to the entry's value in place. The value is only
// reachable through the pointer for the duration of the call.
//
// If fn panics the entry is poisoned: the panic is recovered, the
// accessor is released, and a *PoisonedError carrying the panic value
// and stack trace is returned. The entry then rejects all access until
// it is revalidated or removed.
func (a *Exclusive[T]) Mutate(fn func(*T) error) (err error) {
	a.store.mu.Lock()
	if a.released {
		a.store.mu.Unlock()
		return &AccessError{Op: "mutate", ID: a.id, Err: ErrConflict}
	}
	sl := a.sl
	a.store.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			perr := &PoisonedError{ID: a.id, Value: r, Stack: string(debug.Stack())}
			a.store.poison(a.id, sl, perr)
			a.Release()
			err = perr
		}
	}()

	// The writer flag keeps every other holder out of this slot, so fn
	// runs without the store lock.
	return fn(&sl.value)
}

// Release returns the write capability to the store. Idempotent; safe
// to call from a defer on every exit path.
func (a *Exclusive[T]) Release() {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	a.sl.writer = false
	a.store.notifyLocked(a.sl)
}
