package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process CounterStore. Operations are atomic under a
// single mutex, which makes it a correct single-process fallback and test
// double, but it is not shared across nodes and must not replace Redis in a
// multi-instance deployment.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// get returns the live entry for key, dropping it if expired. Caller holds mu.
func (ms *MemoryStore) get(key string) (memoryEntry, bool) {
	e, ok := ms.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if ms.now().After(e.expiresAt) {
		delete(ms.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	e, ok := ms.get(key)
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (ms *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries[key] = memoryEntry{value: value, expiresAt: ms.now().Add(ttl)}
	return nil
}

func (ms *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var n int64
	if e, ok := ms.get(key); ok {
		n, _ = strconv.ParseInt(string(e.value), 10, 64)
		n++
		// TTL is applied on creation only, matching the Redis script
		ms.entries[key] = memoryEntry{value: []byte(strconv.FormatInt(n, 10)), expiresAt: e.expiresAt}
		return n, nil
	}
	n = 1
	ms.entries[key] = memoryEntry{value: []byte("1"), expiresAt: ms.now().Add(ttl)}
	return n, nil
}

func (ms *MemoryStore) CompareAndSwap(ctx context.Context, key string, old, new []byte, ttl time.Duration) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	e, ok := ms.get(key)
	if !ok {
		if old != nil {
			return false, nil
		}
	} else if old == nil || string(e.value) != string(old) {
		return false, nil
	}
	ms.entries[key] = memoryEntry{value: new, expiresAt: ms.now().Add(ttl)}
	return true, nil
}

func (ms *MemoryStore) Ping(ctx context.Context) error { return nil }

// Sweep removes expired entries. MemoryStore otherwise expires lazily.
func (ms *MemoryStore) Sweep() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	now := ms.now()
	for key, e := range ms.entries {
		if now.After(e.expiresAt) {
			delete(ms.entries, key)
		}
	}
}

// Len reports the number of live entries.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	now := ms.now()
	for _, e := range ms.entries {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}
