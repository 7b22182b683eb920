package runloop

import "sync"

// aggregator is a mode's platform-specific descriptor-readiness multiplexer:
// an epoll fd on Linux, a kqueue fd on Darwin, a handle map on Windows.
// Created lazily on first descriptor-source schedule (§4.1's scheduling
// hook), torn down when the last descriptor source is removed.
//
// The common surface is deliberately small; each platform's wait code
// type-asserts a Mode's aggregator to its own concrete type to reach the
// nesting (POSIX: the aggregation fd itself) or enumeration (Windows: the
// handle set) it needs, since those differ too much across platforms to
// share one method.
type aggregator interface {
	// add registers fd for readiness notification, associated with src.
	add(fd int, src *Source) error
	// remove deregisters fd. Safe to call if fd was never added.
	remove(fd int) error
	// count reports the number of registered descriptors.
	count() int
	// close releases the aggregator's platform resources.
	close() error
}

// Mode is a named bucket partitioning a run-loop's interest set. Equality
// and hashing (here, map-keying) depend only on the name; the zero value is
// never used directly, Modes are always obtained via RunLoop.
type Mode struct {
	name string

	mu           sync.Mutex
	sources      *orderedSet[*Source] // custom + descriptor variants
	timers       *orderedSet[*Source] // timer variant
	observers    *orderedSet[*Observer]
	observerMask Activity // cached OR of observer activity masks, for fast gating

	agg aggregator // lazily created on first descriptor-source add
}

func newMode(name string) *Mode {
	return &Mode{
		name:      name,
		sources:   newOrderedSet[*Source](),
		timers:    newOrderedSet[*Source](),
		observers: newOrderedSet[*Observer](),
	}
}

// Name returns the mode's immutable identity.
func (m *Mode) Name() string { return m.name }

func (m *Mode) recomputeObserverMaskLocked() {
	var mask Activity
	for _, o := range m.observers.Items() {
		mask |= o.activities
	}
	m.observerMask = mask
}

// empty reports whether the mode has nothing left to wait on: no sources,
// no timers. Observers alone don't keep a run alive (spec §4.2.h "all
// current modes empty").
func (m *Mode) empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources.Len() == 0 && m.timers.Len() == 0
}

func (m *Mode) aggregatorIfAny() aggregator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agg
}
