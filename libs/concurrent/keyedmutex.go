package concurrent

import "sync"

// KeyedMutex provides a mutex per string key, so callers can serialize work
// on one key while unrelated keys proceed in parallel. Locks are created on
// first use and held in memory for the life of the process; the expected key
// cardinality is bounded (live transaction ids), so no eviction is done.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex creates a new KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for the given key, creating it if needed
func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &sync.Mutex{}
		km.locks[key] = l
	}
	km.mu.Unlock()

	l.Lock()
}

// Unlock releases the mutex for the given key. Unlocking a key that was
// never locked panics, same as sync.Mutex.
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	km.mu.Unlock()
	if !ok {
		panic("concurrent: unlock of unlocked key " + key)
	}

	l.Unlock()
}
