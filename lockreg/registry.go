// Package lockreg maps graph objects to recursive mutexes.
//
// Every mutable object of the graph is registered under its ID, and the IDs
// increase in creation order. Locks are acquired on behalf of a Holder, a
// token that stands for one goroutine of work (a task, a scope worker); a
// holder may lock the same object again without deadlocking. A holder that
// needs several objects must acquire them in ascending ID order, which
// LockAll does. Acquiring a lower ID while holding a higher one panics with
// recall.LockOrderViolation.
package lockreg

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vsariola/recall"
)

type (
	Key    uint64
	Holder uint64

	Registry struct {
		mu      sync.Mutex // guards the tables only, never held while waiting on an object
		locks   map[Key]*Mutex
		held    map[Holder][]Key
		holders atomic.Uint64
	}
)

func New() *Registry {
	return &Registry{
		locks: make(map[Key]*Mutex),
		held:  make(map[Holder][]Key),
	}
}

// NewHolder returns a fresh holder token.
func (r *Registry) NewHolder() Holder {
	return Holder(r.holders.Add(1))
}

// Register creates the mutex of an object. Registering twice is a no-op.
func (r *Registry) Register(k Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locks[k]; !ok {
		r.locks[k] = newMutex()
	}
}

// Unregister forgets the mutex of an object. The object must not be locked.
func (r *Registry) Unregister(k Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, k)
}

// Lookup returns the mutex of an object, or nil if it was never registered.
func (r *Registry) Lookup(k Key) *Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks[k]
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// Lock acquires the mutex of k for h. Unregistered keys are registered on
// the fly.
func (r *Registry) Lock(h Holder, k Key) {
	r.mu.Lock()
	m, ok := r.locks[k]
	if !ok {
		m = newMutex()
		r.locks[k] = m
	}
	held := r.held[h]
	if !slices.Contains(held, k) {
		if len(held) > 0 && held[len(held)-1] > k {
			r.mu.Unlock()
			panic(recall.LockOrderViolation{Held: uint64(held[len(held)-1]), Acquired: uint64(k)})
		}
		r.held[h] = append(held, k)
	}
	r.mu.Unlock()
	// the table mutex is released before waiting on the object
	m.Lock(h)
}

// Unlock releases one level of the mutex of k held by h.
func (r *Registry) Unlock(h Holder, k Key) {
	r.mu.Lock()
	m := r.locks[k]
	r.mu.Unlock()
	if m == nil {
		panic("lockreg: unlock of unregistered object")
	}
	if m.Unlock(h) == 0 {
		r.mu.Lock()
		held := r.held[h]
		if i := slices.Index(held, k); i >= 0 {
			held = slices.Delete(held, i, i+1)
		}
		if len(held) == 0 {
			delete(r.held, h)
		} else {
			r.held[h] = held
		}
		r.mu.Unlock()
	}
}

// LockAll locks the given keys in ascending order and returns a function
// that unlocks them in reverse order. Duplicates are locked once.
func (r *Registry) LockAll(h Holder, keys ...Key) (unlock func()) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	for _, k := range sorted {
		r.Lock(h, k)
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			r.Unlock(h, sorted[i])
		}
	}
}

// Held returns the keys h currently holds, in acquisition order.
func (r *Registry) Held(h Holder) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.held[h])
}
