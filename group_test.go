package mycache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeLocalCache is a minimal map-backed LocalCache for exercising
// Group without pulling in memcache/diskcache.
type fakeLocalCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	removed []string
}

func newFakeLocalCache() *fakeLocalCache {
	return &fakeLocalCache{values: make(map[string][]byte)}
}

func (c *fakeLocalCache) GetOrAdd(ctx context.Context, key string, origin OriginFunc) (ByteView, bool, bool, error) {
	c.mu.Lock()
	if v, ok := c.values[key]; ok {
		c.mu.Unlock()
		return ByteView{b: v}, true, false, nil
	}
	c.mu.Unlock()

	v, noStore, err := origin(ctx)
	if err != nil {
		return ByteView{}, false, false, err
	}
	if !noStore {
		c.mu.Lock()
		c.values[key] = v
		c.mu.Unlock()
	}
	return ByteView{b: v}, false, false, nil
}

func (c *fakeLocalCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	c.removed = append(c.removed, key)
}

func countingGetter(calls *int32ptr) GetterFunc {
	return func(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
		calls.add(1)
		return dest.SetString("value-of-" + key)
	}
}

// int32ptr avoids importing sync/atomic into every test just to count calls.
type int32ptr struct {
	mu sync.Mutex
	n  int
}

func (c *int32ptr) add(d int) {
	c.mu.Lock()
	c.n += d
	c.mu.Unlock()
}

func (c *int32ptr) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestGetAsyncLocalOnlyGroupLoadsFromOrigin(t *testing.T) {
	calls := &int32ptr{}
	g := NewGroup(NewRegistry(), "g", NewPeerEndpoint("self", 1), newFakeLocalCache(), countingGetter(calls), GroupOptions{})

	var out string
	if err := g.GetAsync(context.Background(), "k1", StringSink(&out), nil); err != nil {
		t.Fatalf("GetAsync returned error: %v", err)
	}
	if out != "value-of-k1" {
		t.Fatalf("got %q, want %q", out, "value-of-k1")
	}
	if calls.get() != 1 {
		t.Fatalf("origin called %d times, want 1", calls.get())
	}
}

func TestGetAsyncCachesSecondCall(t *testing.T) {
	calls := &int32ptr{}
	g := NewGroup(NewRegistry(), "g", NewPeerEndpoint("self", 1), newFakeLocalCache(), countingGetter(calls), GroupOptions{})

	var out string
	g.GetAsync(context.Background(), "k1", StringSink(&out), nil)
	g.GetAsync(context.Background(), "k1", StringSink(&out), nil)

	if calls.get() != 1 {
		t.Fatalf("origin called %d times on repeated Get of the same key, want 1", calls.get())
	}
}

// failingClient always fails with err, recording how many times it was called.
type failingClient struct {
	endpoint PeerEndpoint
	err      error
	calls    *int32ptr
}

func (c *failingClient) Get(ctx context.Context, groupName, key string, dest Sink, cc *CacheControl) error {
	c.calls.add(1)
	return c.err
}
func (c *failingClient) IsLocal() bool          { return false }
func (c *failingClient) Endpoint() PeerEndpoint { return c.endpoint }

func TestGetAsyncFallsBackToLocalWhenAllReplicasFail(t *testing.T) {
	getterCalls := &int32ptr{}
	self := NewPeerEndpoint("self", 1)
	g := NewGroup(NewRegistry(), "g", self, newFakeLocalCache(), countingGetter(getterCalls), GroupOptions{MaxRetry: 2})

	peerCalls := &int32ptr{}
	other := NewPeerEndpoint("other", 2)
	picker := NewPeerPicker(self, &stubClient{endpoint: self, local: true}, func(ep PeerEndpoint) RemoteClient {
		return &failingClient{endpoint: ep, err: ErrConnectFailure, calls: peerCalls}
	})
	picker.Set(other)
	g.RegisterPeers(picker)

	var out string
	err := g.GetAsync(context.Background(), "k1", StringSink(&out), nil)
	if err != nil {
		t.Fatalf("expected fallback to local origin to succeed, got error: %v", err)
	}
	if out != "value-of-k1" {
		t.Fatalf("got %q, want value-of-k1", out)
	}
	if peerCalls.get() == 0 {
		t.Fatal("expected at least one failed replica attempt before falling back")
	}
}

func TestGetAsyncLocallyEvictsOnValidationFailure(t *testing.T) {
	errReject := errors.New("bad payload")
	validator := validatorFunc{
		passThrough: func(key string, dest Sink) ValidationSink { return passThroughSink{Sink: dest} },
		async: func(ctx context.Context, key string, vs ValidationSink) error {
			return errReject
		},
	}

	calls := &int32ptr{}
	cache := newFakeLocalCache()
	g := NewGroup(NewRegistry(), "g", NewPeerEndpoint("self", 1), cache, countingGetter(calls), GroupOptions{Validator: validator})

	var out string
	err := g.GetAsync(context.Background(), "k1", StringSink(&out), nil)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}

	found := false
	for _, k := range cache.removed {
		if k == "k1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the rejected key to be removed from the local cache")
	}
}

type validatorFunc struct {
	passThrough func(key string, dest Sink) ValidationSink
	async       func(ctx context.Context, key string, vs ValidationSink) error
}

func (v validatorFunc) ValidatePassThrough(key string, dest Sink) ValidationSink {
	return v.passThrough(key, dest)
}

func (v validatorFunc) ValidateAsync(ctx context.Context, key string, vs ValidationSink) error {
	return v.async(ctx, key, vs)
}

func TestGetAsyncPropagatesCancellation(t *testing.T) {
	calls := &int32ptr{}
	getter := GetterFunc(func(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
		calls.add(1)
		return ctx.Err()
	})
	g := NewGroup(NewRegistry(), "g", NewPeerEndpoint("self", 1), newFakeLocalCache(), getter, GroupOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out string
	err := g.GetAsync(ctx, "k1", StringSink(&out), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled to surface, got %v", err)
	}
}
