package mycache

import (
	"context"
	"testing"

	"github.com/ridgecache/ridgecache/internal/diskcache"
)

// statsSinkFunc lets a test observe a single trace signal without
// implementing the entire StatsSink interface by hand.
type statsSinkFunc struct {
	nullStatsSink
	overCapacity func()
}

func (s statsSinkFunc) TraceItemOverCapacity() {
	if s.overCapacity != nil {
		s.overCapacity()
	}
}

func TestMemoryLocalCacheMissThenHit(t *testing.T) {
	cache := NewMemoryCache(0)
	calls := 0
	origin := func(ctx context.Context) ([]byte, bool, error) {
		calls++
		return []byte("hello"), false, nil
	}

	v1, hit1, _, err := cache.GetOrAdd(context.Background(), "k", origin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit1 {
		t.Fatal("first fill should report hit=false")
	}
	if !v1.EqualString("hello") {
		t.Fatalf("got %q, want hello", v1.String())
	}

	v2, hit2, _, err := cache.GetOrAdd(context.Background(), "k", origin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit2 {
		t.Fatal("second get should report hit=true")
	}
	if !v2.EqualString("hello") {
		t.Fatalf("got %q, want hello", v2.String())
	}
	if calls != 1 {
		t.Fatalf("origin called %d times, want 1", calls)
	}
}

func TestMemoryLocalCacheRemove(t *testing.T) {
	cache := NewMemoryCache(0)
	cache.GetOrAdd(context.Background(), "k", func(ctx context.Context) ([]byte, bool, error) {
		return []byte("v"), false, nil
	})
	cache.Remove("k")

	calls := 0
	cache.GetOrAdd(context.Background(), "k", func(ctx context.Context) ([]byte, bool, error) {
		calls++
		return []byte("v2"), false, nil
	})
	if calls != 1 {
		t.Fatal("expected Remove to force a fresh origin load")
	}
}

func TestMemoryLocalCacheOnOverCapacityReachesBoundStatsSink(t *testing.T) {
	cache := NewMemoryCache(4)
	sb, ok := cache.(statsBinder)
	if !ok {
		t.Fatal("memoryLocalCache must implement statsBinder")
	}
	var fired []string
	sb.bindStats(statsSinkFunc{overCapacity: func() { fired = append(fired, "over") }})

	cache.GetOrAdd(context.Background(), "toobig", func(ctx context.Context) ([]byte, bool, error) {
		return []byte("waytoolarge"), false, nil
	})

	if len(fired) != 1 {
		t.Fatalf("expected one ItemOverCapacity trace, got %d", len(fired))
	}
}

func TestTieredLocalCacheRoundTripsThroughDisk(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewTieredCache(0, 16, dir, diskcache.OSFileSystem{})
	if err != nil {
		t.Fatalf("NewTieredCache: %v", err)
	}

	calls := 0
	origin := func(ctx context.Context) ([]byte, bool, error) {
		calls++
		return []byte("payload"), false, nil
	}

	v, hit, _, err := cache.GetOrAdd(context.Background(), "k", origin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatal("first fill should report hit=false")
	}
	if !v.EqualString("payload") {
		t.Fatalf("got %q, want payload", v.String())
	}

	v2, hit2, _, err := cache.GetOrAdd(context.Background(), "k", origin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit2 {
		t.Fatal("second get should report hit=true (memory tier)")
	}
	if !v2.EqualString("payload") {
		t.Fatalf("got %q, want payload", v2.String())
	}
	if calls != 1 {
		t.Fatalf("origin called %d times, want 1 (second Get should hit memory)", calls)
	}
}

func TestTieredLocalCacheNoStoreNotRetained(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewTieredCache(0, 16, dir, diskcache.OSFileSystem{})
	if err != nil {
		t.Fatalf("NewTieredCache: %v", err)
	}

	calls := 0
	origin := func(ctx context.Context) ([]byte, bool, error) {
		calls++
		return []byte("payload"), true, nil
	}

	cache.GetOrAdd(context.Background(), "k", origin)
	cache.GetOrAdd(context.Background(), "k", origin)

	if calls != 2 {
		t.Fatalf("origin called %d times, want 2 (noStore entries must not be retained)", calls)
	}
}

func TestTieredLocalCacheRemove(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewTieredCache(0, 16, dir, diskcache.OSFileSystem{})
	if err != nil {
		t.Fatalf("NewTieredCache: %v", err)
	}

	cache.GetOrAdd(context.Background(), "k", func(ctx context.Context) ([]byte, bool, error) {
		return []byte("v"), false, nil
	})
	cache.Remove("k")

	calls := 0
	cache.GetOrAdd(context.Background(), "k", func(ctx context.Context) ([]byte, bool, error) {
		calls++
		return []byte("v2"), false, nil
	})
	if calls != 1 {
		t.Fatal("expected Remove to force a fresh origin load")
	}
}
