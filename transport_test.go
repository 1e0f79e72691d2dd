package mycache

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServerClient(t *testing.T, pool *PeerPool) (*httptest.Server, *httpRemoteClient) {
	t.Helper()
	srv := httptest.NewServer(NewServer(pool))
	t.Cleanup(srv.Close)

	host, port := srv.Listener.Addr().(*net.TCPAddr).IP.String(), srv.Listener.Addr().(*net.TCPAddr).Port
	ep := NewPeerEndpoint(host, port)
	return srv, &httpRemoteClient{endpoint: ep, http: srv.Client()}
}

func TestTransportRoundTrip(t *testing.T) {
	registry := NewRegistry()
	self := NewPeerEndpoint("self", 1)
	getter := GetterFunc(func(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
		return dest.SetString("hello-" + key)
	})
	NewGroup(registry, "g", self, newFakeLocalCache(), getter, GroupOptions{})
	pool := NewPeerPool(self, registry, PeerPoolOptions{})

	_, client := newTestServerClient(t, pool)

	var out []byte
	if err := client.Get(context.Background(), "g", "k1", AllocatingByteSliceSink(&out), &CacheControl{}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(out) != "hello-k1" {
		t.Fatalf("got %q, want hello-k1", out)
	}
}

func TestTransportGroupNotFoundMapsTo404(t *testing.T) {
	pool := NewPeerPool(NewPeerEndpoint("self", 1), NewRegistry(), PeerPoolOptions{})
	_, client := newTestServerClient(t, pool)

	var out []byte
	err := client.Get(context.Background(), "missing", "k", AllocatingByteSliceSink(&out), &CacheControl{})
	if !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("got %v, want ErrGroupNotFound", err)
	}
}

func TestTransportNoStorePropagatesToCallerCacheControl(t *testing.T) {
	registry := NewRegistry()
	self := NewPeerEndpoint("self", 1)
	getter := GetterFunc(func(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
		cc.NoStore = true
		return dest.SetString("v")
	})
	NewGroup(registry, "g", self, newFakeLocalCache(), getter, GroupOptions{})
	pool := NewPeerPool(self, registry, PeerPoolOptions{})

	_, client := newTestServerClient(t, pool)

	var out []byte
	cc := &CacheControl{}
	if err := client.Get(context.Background(), "g", "k1", AllocatingByteSliceSink(&out), cc); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !cc.NoStore {
		t.Fatal("expected Cache-Control: no-store on the response to set cc.NoStore")
	}
}

func TestServeHTTPRejectsNonPostAndWrongPath(t *testing.T) {
	pool := NewPeerPool(NewPeerEndpoint("self", 1), NewRegistry(), PeerPoolOptions{})
	srv := httptest.NewServer(NewServer(pool))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/Get")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /Get status = %d, want 404 (method not allowed is reported as not found)", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/Other", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("POST /Other status = %d, want 404", resp.StatusCode)
	}
}
