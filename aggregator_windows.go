//go:build windows

package runloop

import (
	"sync"

	"golang.org/x/sys/windows"
)

// handleAggregator is a mode's descriptor registry on Windows: a plain
// handle -> Source map, since the platform wait primitive
// (WaitForMultipleObjects) operates over a flat HANDLE[] array rather than
// a nested waitable object the way epoll/kqueue fds are.
type handleAggregator struct {
	mu      sync.Mutex
	handles map[windows.Handle]*Source
}

func newAggregator() (aggregator, error) {
	return &handleAggregator{handles: make(map[windows.Handle]*Source)}, nil
}

func (a *handleAggregator) add(fd int, src *Source) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handles[windows.Handle(uintptr(fd))] = src
	return nil
}

func (a *handleAggregator) remove(fd int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.handles, windows.Handle(uintptr(fd)))
	return nil
}

func (a *handleAggregator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}

func (a *handleAggregator) close() error { return nil }

// snapshot returns the aggregator's handle set under lock, for the outer
// wait to fold into its HANDLE[] array.
func (a *handleAggregator) snapshot() map[windows.Handle]*Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[windows.Handle]*Source, len(a.handles))
	for h, s := range a.handles {
		out[h] = s
	}
	return out
}
