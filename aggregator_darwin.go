//go:build darwin

package runloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kqueueAggregator is a mode's per-mode descriptor multiplexer on Darwin,
// the BSD-kqueue analogue of aggregator_linux.go's epollAggregator.
type kqueueAggregator struct {
	mu         sync.Mutex
	kq         int
	fdToSource map[int]*Source
}

func newAggregator() (aggregator, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueAggregator{kq: kq, fdToSource: make(map[int]*Source)}, nil
}

func (a *kqueueAggregator) add(fd int, src *Source) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(a.kq, changes, nil, nil); err != nil {
		return err
	}
	a.fdToSource[fd] = src
	return nil
}

func (a *kqueueAggregator) remove(fd int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.fdToSource, fd)
	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	}}
	_, err := unix.Kevent(a.kq, changes, nil, nil)
	return err
}

func (a *kqueueAggregator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fdToSource)
}

func (a *kqueueAggregator) close() error {
	return unix.Close(a.kq)
}

// poll confirms which of this mode's descriptors are ready, via a
// non-blocking kevent call, once the outer kqueue has already reported this
// mode's kq fd itself readable.
func (a *kqueueAggregator) poll(timeoutMs int) ([]*Source, error) {
	ts := &unix.Timespec{}
	var events [32]unix.Kevent_t
	n, err := unix.Kevent(a.kq, nil, events[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Source, 0, n)
	for i := 0; i < n; i++ {
		if s, ok := a.fdToSource[int(events[i].Ident)]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
