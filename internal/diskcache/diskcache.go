// Package diskcache implements the refcounted, file-backed LRU of
// spec.md §4.6 (C6): a freshly written entry sits in an in-use table
// (refCount >= 2: the cache's own reference plus the caller's) until its
// last caller releases it, then moves to an idle LRU table (refCount ==
// 1). An entry that GetOrAdd finds in the LRU table is not moved to the
// in-use table: it stays in the LRU table, with its refCount raised,
// until released, and counts against that table's cap meanwhile.
// A single read/write lock serializes transitions between the two
// tables; the refcount itself is manipulated with atomics.
package diskcache

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ridgecache/ridgecache/internal/lru"
)

// diskEntry is the arena-style value the two tables hold pointers to;
// it is never copied so its refCount is shared between both tables'
// view of the same key (spec.md §9's "arena of entries" note).
type diskEntry struct {
	key      string
	path     string
	refCount int32
	inCache  bool
}

// Entry is the caller-facing handle returned by GetOrAdd. Release must
// be called exactly once per handle on every exit path.
type Entry struct {
	cache *Cache
	e     *diskEntry
}

// Path returns the backing file's path. Valid until Release.
func (h Entry) Path() string { return h.e.path }

// Open opens the backing file for reading.
func (h Entry) Open() (io.ReadCloser, error) { return h.cache.fs.OpenRead(h.e.path) }

// Release decrements the handle's reference. Must be called exactly
// once per Entry returned by GetOrAdd.
func (h Entry) Release() { h.cache.release(h.e) }

// Cache is a refcounted, file-backed LRU whose LRU table is bounded to
// maxEntryCount entries. Freshly written entries still referenced by
// callers are tracked in the in-use table and do not count against the
// cap (spec.md invariant I4); an idle entry acquired again by GetOrAdd
// stays in the LRU table and does count.
type Cache struct {
	fs     FileSystem
	tmpDir string

	mu     sync.RWMutex
	lru    *lru.Cache // LRU table: key -> *diskEntry, refCount == 1 while idle
	inUse  map[string]*diskEntry
}

// New constructs a Cache bounded to maxEntryCount idle entries, writing
// temp files under tmpDir (re-created empty at construction, per
// spec.md §4.6's writeAtomic contract) via fs.
func New(maxEntryCount int, tmpDir string, fs FileSystem) (*Cache, error) {
	if err := fs.DirectoryReCreate(tmpDir); err != nil {
		return nil, err
	}
	c := &Cache{
		fs:     fs,
		tmpDir: tmpDir,
		inUse:  make(map[string]*diskEntry),
	}
	c.lru = lru.New(maxEntryCount, 0, 0)
	// lru.Add/Remove are only ever called by Cache methods that already
	// hold c.mu for writing, so this callback must not re-acquire it.
	c.lru.OnEvicted = func(key string, value interface{}) {
		c.finishEraseLocked(value.(*diskEntry))
	}
	return c, nil
}

// getInternal looks up key in either table without taking a ref; caller
// must hold at least the read lock.
func (c *Cache) getInternal(key string) *diskEntry {
	if e, ok := c.lru.TryGet(key); ok {
		return e.(*diskEntry)
	}
	if e, ok := c.inUse[key]; ok {
		return e
	}
	return nil
}

// GetOrAdd returns a handle to key's cached content, invoking write to
// populate it on a miss. write may set *noStore to true while running
// (mirroring the origin loader setting cacheControl.NoStore); if it is
// true once write returns, the handle is still returned (the caller
// consumes it) but the cache does not retain an entry for key beyond
// this handle's lifetime. Pass nil for noStore if the caller never
// suppresses storage.
//
// hit reports whether key was already cached before this call. deduped
// reports whether this call found the entry only after losing the race
// to populate it to another concurrent caller, i.e. the mutex-based
// dedup this cache uses in place of single-flight (spec.md §6's
// CacheHits/LoadsDeduped signals).
func (c *Cache) GetOrAdd(ctx context.Context, key string, write func(io.Writer) error, noStore *bool) (entry Entry, hit bool, deduped bool, err error) {
	c.mu.RLock()
	if e := c.getInternal(key); e != nil {
		atomic.AddInt32(&e.refCount, 1)
		c.mu.RUnlock()
		return Entry{cache: c, e: e}, true, false, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	if e := c.getInternal(key); e != nil {
		atomic.AddInt32(&e.refCount, 1)
		c.mu.Unlock()
		return Entry{cache: c, e: e}, false, true, nil
	}

	path, werr := c.fs.WriteAtomic(ctx, c.tmpDir, write)
	if werr != nil {
		c.mu.Unlock()
		return Entry{}, false, false, werr
	}

	e := &diskEntry{key: key, path: path, refCount: 1}
	if noStore != nil && *noStore {
		// Not inserted into either table: this handle is the only
		// reference, and Release deletes the file once it drops.
		c.mu.Unlock()
		return Entry{cache: c, e: e}, false, false, nil
	}

	e.inCache = true
	atomic.AddInt32(&e.refCount, 1) // caller's ref brings it to 2
	c.inUse[key] = e
	c.mu.Unlock()
	return Entry{cache: c, e: e}, false, false, nil
}

// release implements spec.md §4.6's release(entry) semantics.
func (c *Cache) release(e *diskEntry) {
	c.mu.Lock()
	if !e.inCache {
		c.mu.Unlock()
		n := atomic.AddInt32(&e.refCount, -1)
		if n == 0 {
			c.fs.Delete(e.path, c.tmpDir)
		}
		return
	}

	n := atomic.AddInt32(&e.refCount, -1)
	switch {
	case n == 1:
		delete(c.inUse, e.key)
		c.lru.Add(e.key, e, 1)
		c.mu.Unlock()
	case n <= 0:
		delete(c.inUse, e.key)
		c.mu.Unlock()
		c.fs.Delete(e.path, c.tmpDir)
	default:
		c.mu.Unlock()
	}
}

// Remove evicts key, if present, deleting its backing file once the
// last outstanding reference (if any) is released.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	var e *diskEntry
	if _, ok := c.lru.TryGet(key); ok {
		// lru.Remove fires OnEvicted, which already runs finishEraseLocked.
		c.lru.Remove(key)
	} else if v, ok := c.inUse[key]; ok {
		e = v
		delete(c.inUse, key)
	}
	if e == nil {
		c.mu.Unlock()
		return
	}
	c.finishEraseLocked(e)
	c.mu.Unlock()
}

// finishEraseLocked revokes the cache's own reference to e and, if that
// was the last reference, deletes the backing file. Caller must already
// hold c.mu for writing. This also serves as the LRU table's eviction
// callback, which fires synchronously from within Add/Remove while that
// lock is held.
func (c *Cache) finishEraseLocked(e *diskEntry) {
	e.inCache = false
	if atomic.AddInt32(&e.refCount, -1) <= 0 {
		c.fs.Delete(e.path, c.tmpDir)
	}
}

// Len reports the number of entries in the LRU table: idle entries plus
// any acquired from that table and not yet released. Entries in the
// in-use table are not counted (invariant I4).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
