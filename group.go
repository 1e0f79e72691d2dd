// Package mycache implements a distributed read-through cache: a fixed
// set of cooperating peers serve reads for string keys identifying
// immutable, unversioned payloads, forwarding non-owned keys to their
// canonical owner and coalescing concurrent fills for the same key both
// locally and across the peer set.
package mycache

import (
	"context"
	"errors"
	"time"

	"github.com/ridgecache/ridgecache/internal/retry"
)

// GroupOptions configures NewGroup, mirroring the teacher's
// HTTPPoolOptions pattern: every field has a documented zero-value
// default rather than requiring a functional-options call chain.
type GroupOptions struct {
	// MaxRetry bounds how many replicas GetAsync will try before
	// falling back to a direct local origin load. Zero defaults to 3.
	MaxRetry int

	// StatsSink receives trace events. Nil installs a null sink.
	StatsSink StatsSink

	// Logger receives diagnostic output. Nil installs a
	// logrus-backed default.
	Logger Logger

	// Validator optionally inspects payloads before they are
	// considered final. Nil installs a pass-through no-op.
	Validator Validator
}

func (o GroupOptions) withDefaults() GroupOptions {
	if o.MaxRetry <= 0 {
		o.MaxRetry = 3
	}
	o.StatsSink = defaultStatsSink(o.StatsSink)
	o.Logger = defaultLogger(o.Logger)
	o.Validator = defaultValidator(o.Validator)
	return o
}

// Group is a named cache namespace (spec.md §3): one origin loader, one
// peer picker, one local cache, created once via a Registry and never
// destroyed.
type Group struct {
	name  string
	self  PeerEndpoint
	cache LocalCache

	getter    Getter
	peers     *PeerPicker
	maxRetry  int
	stats     StatsSink
	logger    Logger
	validator Validator
}

// NewGroup registers (idempotently) and returns the Group named name
// for selfEndpoint in registry, backed by cache and getter.
func NewGroup(registry *Registry, name string, self PeerEndpoint, cache LocalCache, getter Getter, opts GroupOptions) *Group {
	if getter == nil {
		panic("mycache: nil Getter")
	}
	opts = opts.withDefaults()
	if sb, ok := cache.(statsBinder); ok {
		sb.bindStats(opts.StatsSink)
	}
	return registry.GetOrCreate(name, self, func() *Group {
		return &Group{
			name:      name,
			self:      self,
			cache:     cache,
			getter:    getter,
			maxRetry:  opts.MaxRetry,
			stats:     opts.StatsSink,
			logger:    opts.Logger,
			validator: opts.Validator,
		}
	})
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// RegisterPeers attaches the PeerPicker a Group consults when a key is
// not canonically owned by self. A Group with no PeerPicker always
// serves from its local cache/origin.
func (g *Group) RegisterPeers(picker *PeerPicker) { g.peers = picker }

// GetAsync is the external entry point (spec.md §4.9): resolve key's
// owner, attempt replicas in order, and fall back to a direct local
// origin load if every replica attempt fails.
func (g *Group) GetAsync(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
	cc = defaultCacheControl(cc)
	g.stats.TraceGets()
	start := time.Now()
	err := g.getOrFallback(ctx, key, dest, cc)
	g.stats.TraceRoundtripLatency(time.Since(start))
	return err
}

// getOrFallback implements the peer-load-or-local state machine.
func (g *Group) getOrFallback(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
	replicas := g.replicasFor(key)
	if len(replicas) == 0 {
		return g.getAsyncLocally(ctx, key, dest, cc)
	}

	attempts := g.maxRetry
	if attempts > len(replicas) || attempts < 1 {
		attempts = len(replicas)
	}

	policy := retry.Policy{MaxAttempts: attempts - 1, Retryable: retryable}
	err := retry.Do(ctx, policy, func(ctx context.Context, rc *retry.Context) error {
		if rc.AttemptCount > 0 {
			g.stats.TraceRetry()
		}
		client := replicas[rc.AttemptCount]
		if client.IsLocal() {
			return g.localLoad(ctx, key, dest, cc)
		}
		return g.peerLoad(ctx, client, key, dest, cc)
	})
	if err == nil {
		return nil
	}

	// Every whitelisted retry is spent, or a non-retryable failure
	// (breaker-open, cancelled, validation-failed) escaped: degrade to
	// a direct local origin read. This trades deduplication for
	// availability (spec.md §4.9, §9). It also means a caller whose
	// context is already cancelled still gets a cancellation error,
	// just surfaced by this final attempt rather than skipped outright.
	return g.getAsyncLocally(ctx, key, dest, cc)
}

func (g *Group) replicasFor(key string) []RemoteClient {
	if g.peers == nil {
		return nil
	}
	return g.peers.PickPeers(key, g.peers.Count())
}

// localLoad reads key through the local cache, streaming the result to
// dest without validation. Used for the owner-is-self branch of the
// replica loop.
func (g *Group) localLoad(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
	g.stats.TraceLocalLoads()
	view, hit, deduped, err := g.cache.GetOrAdd(ctx, key, func(ctx context.Context) ([]byte, bool, error) {
		var buf []byte
		sink := AllocatingByteSliceSink(&buf)
		if err := g.getter.Get(ctx, key, sink, cc); err != nil {
			return nil, false, err
		}
		return buf, cc.NoStore, nil
	})
	if err != nil {
		return err
	}
	if hit {
		g.stats.TraceCacheHits()
	}
	if deduped {
		g.stats.TraceLoadsDeduped()
	}
	return setSinkView(dest, view)
}

// getAsyncLocally is the "local only" entry point (spec.md §4.9): it
// never consults the peer picker, which is what prevents forwarding
// loops when peer lists disagree (spec.md §9). It additionally wraps
// dest in the validator's pass-through stream and, once the load has
// fully written through it, runs ValidateAsync.
func (g *Group) getAsyncLocally(ctx context.Context, key string, dest Sink, cc *CacheControl) error {
	vs := g.validator.ValidatePassThrough(key, dest)
	if err := g.localLoad(ctx, key, vs, cc); err != nil {
		return err
	}
	if err := g.validator.ValidateAsync(ctx, key, vs); err != nil {
		g.cache.Remove(key)
		return wrapf(ErrValidationFailed, "%s: %v", key, err)
	}
	return nil
}

// peerLoad dispatches to a remote replica's client, which internally
// runs through that peer's circuit breaker, writing the payload to dest
// through the validator's pass-through sink, then validates the result
// once it has been fully written.
func (g *Group) peerLoad(ctx context.Context, client RemoteClient, key string, dest Sink, cc *CacheControl) error {
	g.stats.TracePeerLoads()
	vs := g.validator.ValidatePassThrough(key, dest)
	err := client.Get(ctx, g.name, key, vs, cc)
	if err != nil {
		g.stats.TracePeerErrors()
		if !errors.Is(err, ErrBreakerOpen) {
			g.logger.Error().StringField("peer", client.Endpoint().String()).Printf("peer load failed for key %q: %v", key, err)
		}
		return err
	}
	if err := g.validator.ValidateAsync(ctx, key, vs); err != nil {
		g.cache.Remove(key)
		return wrapf(ErrValidationFailed, "%s: %v", key, err)
	}
	return nil
}
