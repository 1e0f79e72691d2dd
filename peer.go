package mycache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/ridgecache/ridgecache/internal/jumphash"
)

// PeerEndpoint identifies a cooperating process (spec.md §3). Host is
// always stored lowercased so endpoint equality and ordering are
// case-insensitive.
type PeerEndpoint struct {
	Host string
	Port int
}

// NewPeerEndpoint constructs a PeerEndpoint, lowercasing host.
func NewPeerEndpoint(host string, port int) PeerEndpoint {
	return PeerEndpoint{Host: strings.ToLower(host), Port: port}
}

// String renders the endpoint as host:port.
func (e PeerEndpoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// Less orders endpoints by lowercased host, then port.
func (e PeerEndpoint) Less(other PeerEndpoint) bool {
	if e.Host != other.Host {
		return e.Host < other.Host
	}
	return e.Port < other.Port
}

// Equal reports case-insensitive host/port equality.
func (e PeerEndpoint) Equal(other PeerEndpoint) bool {
	return e.Host == other.Host && e.Port == other.Port
}

// RemoteClient is what a PeerPicker hands back for an endpoint: either
// the in-process local handler (IsLocal() == true) or a
// circuit-breaker-wrapped HTTP client bound to a remote peer.
type RemoteClient interface {
	// Get fetches key from group groupName, writing the payload into
	// dest. cc is both input (unused today) and output: the client
	// sets cc.NoStore when the peer's response carried
	// Cache-Control: no-store.
	Get(ctx context.Context, groupName, key string, dest Sink, cc *CacheControl) error

	// IsLocal reports whether this client dispatches in-process
	// rather than over the network.
	IsLocal() bool

	// Endpoint returns the peer this client talks to.
	Endpoint() PeerEndpoint
}

// keyHash is the 64-bit string hash fed to the jump hasher (spec.md
// §4.8's "supplied string hasher").
func keyHash(key string) uint64 { return xxhash.Sum64String(key) }

// PeerPicker maintains a sorted endpoint list and a lazily-populated,
// memoised map of endpoint -> client, binding self to the in-process
// local handler and every other endpoint to a client obtained from
// newRemote (spec.md §4.8).
type PeerPicker struct {
	self      PeerEndpoint
	local     RemoteClient
	newRemote func(PeerEndpoint) RemoteClient

	mu        sync.Mutex
	endpoints []PeerEndpoint
	clients   map[PeerEndpoint]RemoteClient
}

// NewPeerPicker constructs a PeerPicker. local is the client bound to
// self (normally the owning PeerPool); newRemote lazily builds a client
// for any other endpoint the first time it's needed.
func NewPeerPicker(self PeerEndpoint, local RemoteClient, newRemote func(PeerEndpoint) RemoteClient) *PeerPicker {
	return &PeerPicker{
		self:      self,
		local:     local,
		newRemote: newRemote,
		clients:   make(map[PeerEndpoint]RemoteClient),
	}
}

// Set replaces the endpoint list.
func (p *PeerPicker) Set(endpoints ...PeerEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = dedupSorted(endpoints)
}

// Add unions endpoints into the existing list.
func (p *PeerPicker) Add(endpoints ...PeerEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = dedupSorted(append(append([]PeerEndpoint{}, p.endpoints...), endpoints...))
}

// remove drops endpoint from the list, used by Discovery.Watch when
// etcd reports a peer's key expired or was explicitly deregistered.
func (p *PeerPicker) remove(endpoint PeerEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.endpoints {
		if e.Equal(endpoint) {
			p.endpoints = append(p.endpoints[:i], p.endpoints[i+1:]...)
			return
		}
	}
}

func dedupSorted(endpoints []PeerEndpoint) []PeerEndpoint {
	sorted := append([]PeerEndpoint{}, endpoints...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Less(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	out := sorted[:0]
	for i, e := range sorted {
		if i == 0 || !e.Equal(sorted[i-1]) {
			out = append(out, e)
		}
	}
	return out
}

// clientFor returns the memoised client for endpoint, creating it (via
// newRemote, or binding to local for self) on first use.
func (p *PeerPicker) clientFor(endpoint PeerEndpoint) RemoteClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[endpoint]; ok {
		return c
	}
	var c RemoteClient
	if endpoint.Equal(p.self) {
		c = p.local
	} else {
		c = p.newRemote(endpoint)
	}
	p.clients[endpoint] = c
	return c
}

// Count returns the number of known peers.
func (p *PeerPicker) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// PickPeers returns an ordered list of clients of length min(n,
// peerCount): result[0] is the canonical owner for key, and the rest
// are deterministic fallbacks, computed by repeatedly jump-hashing the
// same key hash over a shrinking working set (spec.md §4.8).
func (p *PeerPicker) PickPeers(key string, n int) []RemoteClient {
	p.mu.Lock()
	buckets := append([]PeerEndpoint{}, p.endpoints...)
	p.mu.Unlock()

	if n > len(buckets) {
		n = len(buckets)
	}
	h := keyHash(key)
	result := make([]RemoteClient, 0, n)
	for i := 0; i < n && len(buckets) > 0; i++ {
		idx := jumphash.Bucket(h, int32(len(buckets)))
		ep := buckets[idx]
		result = append(result, p.clientFor(ep))
		buckets = append(buckets[:idx], buckets[idx+1:]...)
	}
	return result
}
