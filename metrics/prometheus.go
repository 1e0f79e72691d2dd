// Package metrics provides a Prometheus-backed mycache.StatsSink,
// grounded on krishna-kudari-go-ratelimit/metrics' Collector: one metric
// vector per counter, all partitioned by group name so a process hosting
// several groups gets per-group series instead of one aggregate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metric vectors backing a Sink.
type Collector struct {
	gets               *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	loadsDeduped       *prometheus.CounterVec
	localLoads         *prometheus.CounterVec
	peerLoads          *prometheus.CounterVec
	peerErrors         *prometheus.CounterVec
	serverRequests     *prometheus.CounterVec
	retries            *prometheus.CounterVec
	itemsOverCapacity  *prometheus.CounterVec
	concurrentRequests *prometheus.GaugeVec
	roundtripLatency   *prometheus.HistogramVec
}

type collectorConfig struct {
	namespace string
	registry  prometheus.Registerer
	buckets   []float64
}

// CollectorOption configures NewCollector.
type CollectorOption func(*collectorConfig)

// WithNamespace sets the Prometheus metric namespace (prefix). Default "mycache".
func WithNamespace(ns string) CollectorOption {
	return func(c *collectorConfig) { c.namespace = ns }
}

// WithRegistry registers metrics with r instead of prometheus.DefaultRegisterer.
func WithRegistry(r prometheus.Registerer) CollectorOption {
	return func(c *collectorConfig) { c.registry = r }
}

// WithLatencyBuckets overrides the roundtrip latency histogram's buckets.
func WithLatencyBuckets(b []float64) CollectorOption {
	return func(c *collectorConfig) { c.buckets = b }
}

var defaultLatencyBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// NewCollector builds and registers the metric vectors backing a Sink.
func NewCollector(opts ...CollectorOption) *Collector {
	cfg := &collectorConfig{namespace: "mycache", registry: prometheus.DefaultRegisterer, buckets: defaultLatencyBuckets}
	for _, o := range opts {
		o(cfg)
	}

	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace, Name: name, Help: help,
		}, []string{"group"})
	}

	c := &Collector{
		gets:              counter("gets_total", "Total Get calls received."),
		cacheHits:         counter("cache_hits_total", "Total Get calls served from local cache."),
		loadsDeduped:      counter("loads_deduped_total", "Total origin loads coalesced by single-flight."),
		localLoads:        counter("local_loads_total", "Total loads served from the local cache/origin."),
		peerLoads:         counter("peer_loads_total", "Total loads dispatched to a remote peer."),
		peerErrors:        counter("peer_errors_total", "Total remote peer load failures."),
		serverRequests:    counter("server_requests_total", "Total inbound peer requests handled."),
		retries:           counter("retries_total", "Total replica retries attempted."),
		itemsOverCapacity: counter("items_over_capacity_total", "Total items rejected for exceeding a single-entry capacity limit."),
		concurrentRequests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.namespace, Name: "concurrent_server_requests", Help: "In-flight inbound peer requests.",
		}, []string{"group"}),
		roundtripLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.namespace, Name: "roundtrip_latency_seconds", Help: "Get call latency in seconds.", Buckets: cfg.buckets,
		}, []string{"group"}),
	}

	cfg.registry.MustRegister(c.gets, c.cacheHits, c.loadsDeduped, c.localLoads, c.peerLoads,
		c.peerErrors, c.serverRequests, c.retries, c.itemsOverCapacity, c.concurrentRequests, c.roundtripLatency)
	return c
}

// Sink adapts a Collector into a mycache.StatsSink for one named group.
// Construct one per Group via ForGroup rather than implementing
// mycache.StatsSink on Collector directly, since every counter is
// partitioned by group label.
type Sink struct {
	group string
	c     *Collector
}

// ForGroup returns the StatsSink to pass as GroupOptions.StatsSink for
// the named group.
func (c *Collector) ForGroup(group string) *Sink { return &Sink{group: group, c: c} }

func (s *Sink) TraceGets()          { s.c.gets.WithLabelValues(s.group).Inc() }
func (s *Sink) TraceCacheHits()     { s.c.cacheHits.WithLabelValues(s.group).Inc() }
func (s *Sink) TraceLoadsDeduped()  { s.c.loadsDeduped.WithLabelValues(s.group).Inc() }
func (s *Sink) TraceLocalLoads()    { s.c.localLoads.WithLabelValues(s.group).Inc() }
func (s *Sink) TracePeerLoads()     { s.c.peerLoads.WithLabelValues(s.group).Inc() }
func (s *Sink) TracePeerErrors()    { s.c.peerErrors.WithLabelValues(s.group).Inc() }
func (s *Sink) TraceServerRequests() { s.c.serverRequests.WithLabelValues(s.group).Inc() }
func (s *Sink) TraceRetry()           { s.c.retries.WithLabelValues(s.group).Inc() }
func (s *Sink) TraceItemOverCapacity() { s.c.itemsOverCapacity.WithLabelValues(s.group).Inc() }

func (s *Sink) TraceRoundtripLatency(d time.Duration) {
	s.c.roundtripLatency.WithLabelValues(s.group).Observe(d.Seconds())
}

func (s *Sink) TraceConcurrentServerRequests(n int) {
	s.c.concurrentRequests.WithLabelValues(s.group).Set(float64(n))
}
