package mycache

import (
	"context"
	"io"

	"github.com/ridgecache/ridgecache/internal/diskcache"
	"github.com/ridgecache/ridgecache/memcache"
)

// OriginFunc loads the bytes for a single cache miss, reporting whether
// the caller's cache-control asked that the result not be retained.
type OriginFunc func(ctx context.Context) (value []byte, noStore bool, err error)

// LocalCache is the "local cache" of spec.md §3/§4.9: a Group consults
// it before falling through to a peer or the origin loader. Two
// implementations are provided: a memory-only cache (C5) and a tiered
// memory-over-disk cache (C5 fronting C6).
//
// GetOrAdd's hit and deduped returns feed the Stats capability's
// CacheHits and LoadsDeduped signals (spec.md §6): hit reports whether
// key was already cached before this call, deduped reports whether
// this call's fill was shared with at least one other concurrent
// caller instead of triggering its own origin round trip.
type LocalCache interface {
	GetOrAdd(ctx context.Context, key string, origin OriginFunc) (view ByteView, hit bool, deduped bool, err error)
	Remove(key string)
}

// statsBinder is implemented by a LocalCache that wants to report
// ItemOverCapacity events once its owning Group's StatsSink is known.
// A LocalCache is constructed before the Group that will use it (see
// NewMemoryCache/NewTieredCache's call sites), so this binding happens
// after the fact rather than at construction.
type statsBinder interface {
	bindStats(sink StatsSink)
}

// memoryLocalCache adapts memcache.Cache to LocalCache.
type memoryLocalCache struct {
	mem *memcache.Cache
}

// NewMemoryCache returns a LocalCache backed only by an in-memory
// byte-charged LRU bounded to maxBytes (0 disables the bound).
func NewMemoryCache(maxBytes int64) LocalCache {
	return &memoryLocalCache{mem: memcache.New(maxBytes)}
}

func (c *memoryLocalCache) GetOrAdd(ctx context.Context, key string, origin OriginFunc) (ByteView, bool, bool, error) {
	e, hit, deduped, err := c.mem.GetOrAdd(ctx, key, memcache.Factory(origin))
	if err != nil {
		return ByteView{}, false, false, err
	}
	return ByteView{b: e.Value()}, hit, deduped, nil
}

func (c *memoryLocalCache) Remove(key string) { c.mem.Remove(key) }

func (c *memoryLocalCache) bindStats(sink StatsSink) {
	c.mem.OnOverCapacity(func(string) { sink.TraceItemOverCapacity() })
}

// tieredLocalCache fronts a disk cache with a memory cache: a hit in
// memory never touches disk; a disk hit or fill is copied into memory
// once on the way back to the caller (this module's ByteView/Sink
// contract works over in-memory views, not streaming readers, so the
// disk entry's handle is released as soon as its bytes are copied out,
// trading large-payload streaming for a uniform in-memory API).
type tieredLocalCache struct {
	mem  *memcache.Cache
	disk *diskcache.Cache
}

// NewTieredCache returns a LocalCache that keeps a hot in-memory LRU
// (maxMemBytes, 0 disables) in front of a refcounted disk cache bounded
// to maxDiskEntries idle entries, writing temp files under tmpDir.
func NewTieredCache(maxMemBytes int64, maxDiskEntries int, tmpDir string, fs diskcache.FileSystem) (LocalCache, error) {
	dc, err := diskcache.New(maxDiskEntries, tmpDir, fs)
	if err != nil {
		return nil, err
	}
	return &tieredLocalCache{mem: memcache.New(maxMemBytes), disk: dc}, nil
}

func (c *tieredLocalCache) GetOrAdd(ctx context.Context, key string, origin OriginFunc) (ByteView, bool, bool, error) {
	var diskHit, diskDeduped bool
	e, memHit, memDeduped, err := c.mem.GetOrAdd(ctx, key, func(ctx context.Context) ([]byte, bool, error) {
		var noStore bool
		var originErr error

		h, hit, deduped, err := c.disk.GetOrAdd(ctx, key, func(w io.Writer) error {
			b, ns, ferr := origin(ctx)
			noStore = ns
			if ferr != nil {
				originErr = ferr
				return ferr
			}
			_, werr := w.Write(b)
			return werr
		}, &noStore)
		diskHit, diskDeduped = hit, deduped
		if err != nil {
			if originErr != nil {
				return nil, noStore, originErr
			}
			return nil, noStore, err
		}
		defer h.Release()

		r, err := h.Open()
		if err != nil {
			return nil, noStore, err
		}
		defer r.Close()
		b, err := io.ReadAll(r)
		return b, noStore, err
	})
	if err != nil {
		return ByteView{}, false, false, err
	}
	// A disk-level hit still means memory had to refill from a factory
	// call, so the overall signal is the union of both tiers': memHit
	// only ever fires on its own (a disk check is never reached), while
	// diskHit/diskDeduped only matter on a memory miss.
	return ByteView{b: e.Value()}, memHit || diskHit, memDeduped || diskDeduped, nil
}

func (c *tieredLocalCache) Remove(key string) {
	c.mem.Remove(key)
	c.disk.Remove(key)
}

func (c *tieredLocalCache) bindStats(sink StatsSink) {
	c.mem.OnOverCapacity(func(string) { sink.TraceItemOverCapacity() })
}
