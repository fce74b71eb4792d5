package vectorstore

import "sync"

// lockKey scopes a write lock to one collection in one location.
type lockKey struct {
	location   string
	collection string
}

// writeLocks serialises writers to the same collection across every
// Collection handle in the process. Readers never touch it.
var writeLocks = &lockTable{locks: make(map[lockKey]*sync.Mutex)}

type lockTable struct {
	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

// get returns the mutex for key, creating it on first use.
func (t *lockTable) get(key lockKey) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	return m
}
