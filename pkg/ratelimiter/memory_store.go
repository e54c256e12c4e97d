package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	tokens     int
	lastRefill time.Time
	// idleAfter is when the bucket would be full again if left alone.
	idleAfter time.Time
}

// MemoryStore keeps buckets in process memory. Buckets that have refilled
// completely are dropped on a later Take, so the map only holds keys that
// are actually throttled.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*memoryBucket
	now       func() time.Time
	lastPrune time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryClock replaces time.Now, for tests.
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{buckets: make(map[string]*memoryBucket), now: time.Now}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

const pruneEvery = time.Minute

// Take implements Store.
func (ms *MemoryStore) Take(_ context.Context, key string, config Config) (int, time.Time, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	if now.Sub(ms.lastPrune) >= pruneEvery {
		for k, b := range ms.buckets {
			if now.After(b.idleAfter) {
				delete(ms.buckets, k)
			}
		}
		ms.lastPrune = now
	}

	b, ok := ms.buckets[key]
	if !ok {
		b = &memoryBucket{tokens: config.Capacity, lastRefill: now}
		ms.buckets[key] = b
	}

	if intervals := int(now.Sub(b.lastRefill) / config.RefillInterval); intervals > 0 {
		// Capped so a long idle period cannot overflow the multiplication.
		intervals = min(intervals, config.Capacity/config.RefillRate+1)
		b.tokens = min(b.tokens+intervals*config.RefillRate, config.Capacity)
		b.lastRefill = now
	}
	b.idleAfter = now.Add(config.fullAfter())
	resetAt := b.lastRefill.Add(config.RefillInterval)

	if b.tokens < 1 {
		return b.tokens - 1, resetAt, nil
	}
	b.tokens--
	return b.tokens, resetAt, nil
}

// Reset implements Store.
func (ms *MemoryStore) Reset(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.buckets, key)
	return nil
}

// Len returns the number of buckets held.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.buckets)
}
