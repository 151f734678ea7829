package lockreg

import "sync"

// Mutex is a recursive mutex owned by a Holder.
type Mutex struct {
	mu    sync.Mutex
	cond  sync.Cond
	owner Holder
	depth int
}

func newMutex() *Mutex {
	m := &Mutex{}
	m.cond.L = &m.mu
	return m
}

func (m *Mutex) Lock(h Holder) {
	m.mu.Lock()
	for m.depth > 0 && m.owner != h {
		m.cond.Wait()
	}
	m.owner = h
	m.depth++
	m.mu.Unlock()
}

// Unlock releases one level and returns the remaining depth.
func (m *Mutex) Unlock(h Holder) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth == 0 || m.owner != h {
		panic("lockreg: unlock of mutex not owned by holder")
	}
	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.cond.Broadcast()
	}
	return m.depth
}
