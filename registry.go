package mycache

import "sync"

// groupKey identifies a Group uniquely within a process (spec.md §3).
type groupKey struct {
	name string
	self PeerEndpoint
}

// Registry is a process-wide, idempotent table of named groups, keyed
// by (groupName, selfEndpoint) so the same binary can host multiple
// self-endpoints in tests without cross-talk (spec.md §4.12).
type Registry struct {
	mu     sync.RWMutex
	groups map[groupKey]*Group
}

// NewRegistry constructs an empty Registry. Most programs want the
// package-level DefaultRegistry instead of constructing their own.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[groupKey]*Group)}
}

// DefaultRegistry is a process-wide registry, mirroring the teacher's
// package-level groups map, for callers to pass to NewGroup and
// NewPeerPool (as cmd/ridgecached does).
var DefaultRegistry = NewRegistry()

// GetOrCreate inserts build()'s result if no group is yet registered
// under (name, self); otherwise it returns the existing registration
// untouched. Registration is idempotent: the first winning registration
// wins, matching spec.md §4.12 exactly.
func (r *Registry) GetOrCreate(name string, self PeerEndpoint, build func() *Group) *Group {
	k := groupKey{name: name, self: self}

	r.mu.RLock()
	if g, ok := r.groups[k]; ok {
		r.mu.RUnlock()
		return g
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[k]; ok {
		return g
	}
	g := build()
	r.groups[k] = g
	return g
}

// Get looks up a Group by (name, self) for inbound dispatch.
func (r *Registry) Get(name string, self PeerEndpoint) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupKey{name: name, self: self}]
	return g, ok
}
