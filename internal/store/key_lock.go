package store

import (
	"hash/fnv"
	"sync"
)

// keyLock hands out one mutex per cache key. Entries are dropped once nobody holds them.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyLockEntry)}
}

func (k *keyLock) Lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, found := k.locks[key]
	if !found {
		entry = &keyLockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// advisoryLockID maps a cache key onto the bigint space of pg_advisory_xact_lock.
func advisoryLockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
