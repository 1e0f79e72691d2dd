package mycache

import (
	"context"
	"testing"
)

func TestPeerPoolHandleGetDispatchesToLocalGroup(t *testing.T) {
	registry := NewRegistry()
	self := NewPeerEndpoint("self", 1)
	getter := GetterFunc(func(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
		return dest.SetString("v-" + key)
	})
	NewGroup(registry, "g", self, newFakeLocalCache(), getter, GroupOptions{})

	pool := NewPeerPool(self, registry, PeerPoolOptions{})

	var out []byte
	err := pool.handleGet(context.Background(), "g", "k1", AllocatingByteSliceSink(&out), &CacheControl{})
	if err != nil {
		t.Fatalf("handleGet: %v", err)
	}
	if string(out) != "v-k1" {
		t.Fatalf("got %q, want v-k1", out)
	}
}

func TestPeerPoolHandleGetUnknownGroup(t *testing.T) {
	pool := NewPeerPool(NewPeerEndpoint("self", 1), NewRegistry(), PeerPoolOptions{})
	var out []byte
	err := pool.handleGet(context.Background(), "missing", "k", AllocatingByteSliceSink(&out), &CacheControl{})
	if err == nil {
		t.Fatal("expected ErrGroupNotFound for an unregistered group")
	}
}

func TestPeerPoolHandleGetAdmissionLimit(t *testing.T) {
	registry := NewRegistry()
	self := NewPeerEndpoint("self", 1)
	started := make(chan struct{})
	block := make(chan struct{})
	getter := GetterFunc(func(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
		close(started)
		<-block
		return dest.SetString("v")
	})
	NewGroup(registry, "g", self, newFakeLocalCache(), getter, GroupOptions{})

	pool := NewPeerPool(self, registry, PeerPoolOptions{Concurrency: 1})

	done := make(chan error, 1)
	go func() {
		var out []byte
		done <- pool.handleGet(context.Background(), "g", "slow-key", AllocatingByteSliceSink(&out), &CacheControl{})
	}()

	<-started

	var out []byte
	err := pool.handleGet(context.Background(), "g", "other-key", AllocatingByteSliceSink(&out), &CacheControl{})
	close(block)
	<-done

	if err == nil {
		t.Fatal("expected the second concurrent call to be rejected with ErrServerBusy")
	}
}
