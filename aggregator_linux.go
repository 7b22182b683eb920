//go:build linux

package runloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollAggregator is a mode's per-mode descriptor multiplexer on Linux,
// restructured from the teacher's single global FastPoller (poller_linux.go)
// into one epoll fd per mode, per spec §4.3's POSIX realization ("each mode
// owns an epoll fd containing its descriptor-sources").
type epollAggregator struct {
	mu         sync.Mutex
	epfd       int
	fdToSource map[int]*Source
}

func newAggregator() (aggregator, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollAggregator{epfd: epfd, fdToSource: make(map[int]*Source)}, nil
}

func (a *epollAggregator) add(fd int, src *Source) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(a.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	a.fdToSource[fd] = src
	return nil
}

func (a *epollAggregator) remove(fd int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.fdToSource, fd)
	return unix.EpollCtl(a.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (a *epollAggregator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fdToSource)
}

func (a *epollAggregator) close() error {
	return unix.Close(a.epfd)
}

// poll runs epoll_wait on a.epfd with timeoutMs and returns the sources
// whose descriptors it reports ready. The outer wait calls it with 0 (a
// non-blocking check) once it has seen this mode's epfd itself readable.
func (a *epollAggregator) poll(timeoutMs int) ([]*Source, error) {
	var buf [32]unix.EpollEvent
	n, err := unix.EpollWait(a.epfd, buf[:], timeoutMs)
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
		if s, ok := a.fdToSource[int(buf[i].Fd)]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
