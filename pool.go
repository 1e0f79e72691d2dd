package mycache

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ridgecache/ridgecache/internal/breaker"
)

const (
	defaultPoolConcurrency  = 24
	defaultBreakerMaxRetry  = 5
	defaultBreakerBackoff   = 30 * time.Second
	defaultHTTPClientTimeout = 2 * time.Minute
)

// PeerPoolOptions configures NewPeerPool.
type PeerPoolOptions struct {
	// Concurrency bounds how many inbound peer requests handleGet will
	// run at once; beyond it, new requests fail fast with
	// ErrServerBusy. Zero defaults to 24.
	Concurrency int64

	// HTTPClient is used for outbound requests to other peers. Nil
	// installs a client with a generous fixed timeout.
	HTTPClient *http.Client

	// BreakerMaxRetry and BreakerBackoff parameterize the per-peer
	// circuit breaker. Zero values default to 5 and 30s.
	BreakerMaxRetry int
	BreakerBackoff  time.Duration

	Logger Logger
}

func (o PeerPoolOptions) withDefaults() PeerPoolOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = defaultPoolConcurrency
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: defaultHTTPClientTimeout}
	}
	if o.BreakerMaxRetry <= 0 {
		o.BreakerMaxRetry = defaultBreakerMaxRetry
	}
	if o.BreakerBackoff <= 0 {
		o.BreakerBackoff = defaultBreakerBackoff
	}
	o.Logger = defaultLogger(o.Logger)
	return o
}

// PeerPool is the process's single point of contact for inbound peer
// requests (spec.md §4.10) and also serves as the "local" RemoteClient
// every PeerPicker binds to self. It owns per-remote-peer breaker-wrapped
// HTTP clients and per-group PeerPickers, both created lazily and cached
// for the pool's lifetime.
type PeerPool struct {
	self      PeerEndpoint
	registry  *Registry
	admission *semaphore.Weighted
	httpClient *http.Client
	breakerMaxRetry int
	breakerBackoff  time.Duration
	logger    Logger

	mu      sync.Mutex
	clients map[PeerEndpoint]RemoteClient
	pickers map[string]*PeerPicker

	// inFlight counts admitted, currently-running handleGet calls across
	// every group this pool serves, feeding TraceConcurrentServerRequests.
	inFlight int64
}

// NewPeerPool constructs a PeerPool bound to self, dispatching inbound
// requests against registry.
func NewPeerPool(self PeerEndpoint, registry *Registry, opts PeerPoolOptions) *PeerPool {
	opts = opts.withDefaults()
	return &PeerPool{
		self:            self,
		registry:        registry,
		admission:       semaphore.NewWeighted(opts.Concurrency),
		httpClient:      opts.HTTPClient,
		breakerMaxRetry: opts.BreakerMaxRetry,
		breakerBackoff:  opts.BreakerBackoff,
		logger:          opts.Logger,
		clients:         make(map[PeerEndpoint]RemoteClient),
		pickers:         make(map[string]*PeerPicker),
	}
}

// Self returns the endpoint this pool answers for.
func (p *PeerPool) Self() PeerEndpoint { return p.self }

// Get implements RemoteClient so a PeerPicker can bind self directly to
// the pool: dispatching "to self" is just an in-process call to
// handleGet, with no network hop.
func (p *PeerPool) Get(ctx context.Context, groupName, key string, dest Sink, cc *CacheControl) error {
	return p.handleGet(ctx, groupName, key, dest, cc)
}

// IsLocal always reports true for the pool itself.
func (p *PeerPool) IsLocal() bool { return true }

// Endpoint returns the pool's own endpoint.
func (p *PeerPool) Endpoint() PeerEndpoint { return p.self }

// handleGet is the inbound-request entry point shared by the in-process
// local RemoteClient and transport.go's HTTP server (spec.md §4.10):
// admission-gate, resolve the named group, and dispatch to its
// local-only load path.
func (p *PeerPool) handleGet(ctx context.Context, groupName, key string, dest Sink, cc *CacheControl) error {
	if !p.admission.TryAcquire(1) {
		return ErrServerBusy
	}
	defer p.admission.Release(1)

	g, ok := p.registry.Get(groupName, p.self)
	if !ok {
		return wrapf(ErrGroupNotFound, "%s", groupName)
	}

	n := atomic.AddInt64(&p.inFlight, 1)
	defer atomic.AddInt64(&p.inFlight, -1)
	g.stats.TraceServerRequests()
	g.stats.TraceConcurrentServerRequests(int(n))

	return g.getAsyncLocally(ctx, key, dest, cc)
}

// GetPicker returns the memoised PeerPicker for groupName, building it
// (bound to self and this pool's lazily-created clients) on first use.
func (p *PeerPool) GetPicker(groupName string) *PeerPicker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if picker, ok := p.pickers[groupName]; ok {
		return picker
	}
	picker := NewPeerPicker(p.self, p, p.getClient)
	p.pickers[groupName] = picker
	return picker
}

// getClient returns the memoised RemoteClient for endpoint, building a
// breaker-wrapped HTTP client on first use. Called only for endpoints
// other than self; PeerPicker binds self to the pool itself.
func (p *PeerPool) getClient(endpoint PeerEndpoint) RemoteClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[endpoint]; ok {
		return c
	}
	c := &breakerClient{
		inner: &httpRemoteClient{endpoint: endpoint, http: p.httpClient},
		cb:    breaker.New(p.breakerMaxRetry, p.breakerBackoff),
	}
	p.clients[endpoint] = c
	return c
}

// breakerClient wraps a RemoteClient in a per-peer circuit breaker
// (spec.md §4.7). ErrServerBusy must not count toward tripping, so the
// inner call's result is translated to the breaker package's own
// ErrServerBusy sentinel for the duration of Call and translated back
// once Call returns. That keeps a caller's errors.Is(err, ErrServerBusy)
// check seeing mycache's own sentinel, not the breaker's internal one.
type breakerClient struct {
	inner RemoteClient
	cb    *breaker.Breaker
}

func (c *breakerClient) IsLocal() bool          { return c.inner.IsLocal() }
func (c *breakerClient) Endpoint() PeerEndpoint { return c.inner.Endpoint() }

func (c *breakerClient) Get(ctx context.Context, groupName, key string, dest Sink, cc *CacheControl) error {
	var realErr error
	cbErr := c.cb.Call(func() error {
		err := c.inner.Get(ctx, groupName, key, dest, cc)
		realErr = err
		if errors.Is(err, ErrServerBusy) {
			return breaker.ErrServerBusy
		}
		return err
	})

	switch {
	case errors.Is(cbErr, breaker.ErrOpen):
		return ErrBreakerOpen
	case errors.Is(cbErr, breaker.ErrServerBusy):
		return realErr
	default:
		return cbErr
	}
}
