// Package memcache implements the in-memory byte-buffer cache (C5):
// a byte-charged LRU guarded by single-flight so concurrent misses for
// the same key run the origin factory exactly once.
package memcache

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/ridgecache/ridgecache/internal/lru"
)

// Entry is the handle returned by GetOrAdd. Ref and Dispose are no-ops
// in the memory cache (a plain byte slice needs no refcounted lifecycle,
// unlike a disk cache entry) but are kept so callers can treat memory
// and disk entries uniformly.
type Entry struct {
	b []byte
}

// Value returns the entry's bytes. Callers must not mutate the result.
func (e Entry) Value() []byte { return e.b }

// Ref is a no-op; memory entries have no refcounted lifetime.
func (e Entry) Ref() {}

// Dispose is a no-op; memory entries have no refcounted lifetime.
func (e Entry) Dispose() {}

// Factory loads the bytes for a cache miss. When it sets noStore to
// true, the returned value is still handed to the caller but is not
// retained in the cache (spec.md §4.5).
type Factory func(ctx context.Context) (value []byte, noStore bool, err error)

// Cache is a byte-charged LRU of entries, deduplicating concurrent fills
// for the same key via single-flight. This preserves the ordering spec.md
// §9 calls out: the flight prevents duplicate inserts, not the LRU.
type Cache struct {
	flight singleflight.Group
	lru    *lru.Cache
}

// New constructs a Cache bounded by maxBytes (0 disables byte-capacity
// eviction; count-based eviction is always disabled here, matching the
// teacher's byte-only memory cache).
func New(maxBytes int64) *Cache {
	return &Cache{lru: lru.New(0, maxBytes, 0)}
}

// GetOrAdd returns the cached entry for key, invoking factory on a miss.
// Concurrent callers for the same cold key share one factory
// invocation; the winner's result is returned to every waiter. hit
// reports whether the entry was already cached before this call;
// deduped reports whether this call's fill was shared with at least
// one other concurrent caller for the same key (spec.md §6's
// CacheHits/LoadsDeduped signals).
func (c *Cache) GetOrAdd(ctx context.Context, key string, factory Factory) (entry Entry, hit bool, deduped bool, err error) {
	if b, ok := c.lru.TryGet(key); ok {
		return Entry{b: b.([]byte)}, true, false, nil
	}

	vi, err, shared := c.flight.Do(key, func() (interface{}, error) {
		// Re-check inside the flight: a fill that finished between the
		// TryGet above and this flight starting has already stored key.
		if b, ok := c.lru.TryGet(key); ok {
			return b, nil
		}
		b, noStore, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		if !noStore {
			c.lru.Add(key, b, int64(len(key))+int64(len(b)))
		}
		return b, nil
	})
	if err != nil {
		return Entry{}, false, false, err
	}
	return Entry{b: vi.([]byte)}, false, shared, nil
}

// Remove discards key synchronously, if present.
func (c *Cache) Remove(key string) { c.lru.Remove(key) }

// Len reports the number of entries currently cached.
func (c *Cache) Len() int { return c.lru.Len() }

// Usage reports the total charge (bytes) currently cached.
func (c *Cache) Usage() int64 { return c.lru.Usage() }

// OnEvicted registers a callback invoked whenever an entry leaves the
// LRU, whether evicted for capacity or discarded by Remove.
func (c *Cache) OnEvicted(fn func(key string)) {
	c.lru.OnEvicted = func(key string, value interface{}) { fn(key) }
}

// OnOverCapacity registers a callback invoked whenever a single
// incoming entry's charge alone exceeds the cache's capacity, so it is
// rejected outright rather than evicting its way in (spec.md §6's
// ItemOverCapacity signal).
func (c *Cache) OnOverCapacity(fn func(key string)) {
	c.lru.OnOverCapacity = func(key string, value interface{}) { fn(key) }
}
