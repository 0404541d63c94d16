package lockout

import "sync"

// KeyedMutex serializes work per key. Different keys never contend.
// Entries are never evicted; the ledger only locks usernames of registered
// accounts, so the map is bounded by the user table.
type KeyedMutex struct {
	locks sync.Map // key -> *sync.Mutex
}

// Lock acquires the mutex for key and returns its release func
func (k *KeyedMutex) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
