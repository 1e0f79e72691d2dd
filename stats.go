package mycache

import (
	"fmt"
	"sync/atomic"
	"time"
)

// AtomicInt is an int64 manipulated only through atomic operations,
// grounded on the teacher's mycache.go Stats counters.
type AtomicInt int64

// Add atomically adds n to i.
func (i *AtomicInt) Add(n int64) { atomic.AddInt64((*int64)(i), n) }

// Get atomically reads i.
func (i *AtomicInt) Get() int64 { return atomic.LoadInt64((*int64)(i)) }

func (i *AtomicInt) String() string { return fmt.Sprintf("%d", i.Get()) }

// StatsSink is the external "Stats capability" (spec.md §6): a
// thread-safe counter surface a Group reports into. A null
// implementation is always available so a Group never requires one.
type StatsSink interface {
	TraceGets()
	TraceCacheHits()
	TraceLoadsDeduped()
	TraceLocalLoads()
	TracePeerLoads()
	TracePeerErrors()
	TraceServerRequests()
	TraceRoundtripLatency(d time.Duration)
	TraceRetry()
	TraceItemOverCapacity()
	TraceConcurrentServerRequests(n int)
}

// Stats is an in-process StatsSink implementation exposing plain
// counters for diagnostics and tests. It is used only when passed as
// GroupOptions.StatsSink; a Group built without one gets a null sink.
type Stats struct {
	Gets                    AtomicInt
	CacheHits               AtomicInt
	LoadsDeduped            AtomicInt
	LocalLoads              AtomicInt
	PeerLoads               AtomicInt
	PeerErrors              AtomicInt
	ServerRequests          AtomicInt
	Retries                 AtomicInt
	ItemsOverCapacity       AtomicInt
	ConcurrentServerReqs    AtomicInt
	RoundtripLatencyTotalNs AtomicInt
}

func (s *Stats) TraceGets()           { s.Gets.Add(1) }
func (s *Stats) TraceCacheHits()      { s.CacheHits.Add(1) }
func (s *Stats) TraceLoadsDeduped()   { s.LoadsDeduped.Add(1) }
func (s *Stats) TraceLocalLoads()     { s.LocalLoads.Add(1) }
func (s *Stats) TracePeerLoads()      { s.PeerLoads.Add(1) }
func (s *Stats) TracePeerErrors()     { s.PeerErrors.Add(1) }
func (s *Stats) TraceServerRequests() { s.ServerRequests.Add(1) }
func (s *Stats) TraceRetry()          { s.Retries.Add(1) }
func (s *Stats) TraceItemOverCapacity() { s.ItemsOverCapacity.Add(1) }

func (s *Stats) TraceRoundtripLatency(d time.Duration) {
	s.RoundtripLatencyTotalNs.Add(int64(d))
}

func (s *Stats) TraceConcurrentServerRequests(n int) {
	s.ConcurrentServerReqs.Add(int64(n))
}

// HitRate returns CacheHits/Gets as a percentage, or 0 when Gets is 0.
func (s *Stats) HitRate() float64 {
	gets := s.Gets.Get()
	if gets == 0 {
		return 0
	}
	return float64(s.CacheHits.Get()) / float64(gets) * 100
}

// nullStatsSink discards every trace call; used when a Group is
// constructed without an explicit StatsSink.
type nullStatsSink struct{}

func (nullStatsSink) TraceGets()                            {}
func (nullStatsSink) TraceCacheHits()                       {}
func (nullStatsSink) TraceLoadsDeduped()                    {}
func (nullStatsSink) TraceLocalLoads()                      {}
func (nullStatsSink) TracePeerLoads()                       {}
func (nullStatsSink) TracePeerErrors()                      {}
func (nullStatsSink) TraceServerRequests()                  {}
func (nullStatsSink) TraceRoundtripLatency(time.Duration)   {}
func (nullStatsSink) TraceRetry()                           {}
func (nullStatsSink) TraceItemOverCapacity()                {}
func (nullStatsSink) TraceConcurrentServerRequests(int)     {}

func defaultStatsSink(s StatsSink) StatsSink {
	if s == nil {
		return nullStatsSink{}
	}
	return s
}
