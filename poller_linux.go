//go:build linux

package runloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// wait implements the platform wait backend (spec §4.3) on Linux: an outer
// epoll fd, constructed fresh per wait, containing every current mode's
// aggregation epoll fd plus the self-wake socketpair's read end.
func (rl *RunLoop) wait(modes []*Mode, sleep time.Duration) waitOutcome {
	outer, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return waitOutcome{kind: waitError, err: &WaitBackendError{Cause: err}}
	}
	defer unix.Close(outer)

	wake, _ := rl.wake.(*posixWake)
	if wake != nil {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wake.readFD())}
		if err := unix.EpollCtl(outer, unix.EPOLL_CTL_ADD, wake.readFD(), &ev); err != nil {
			return waitOutcome{kind: waitError, err: &WaitBackendError{Cause: err}}
		}
	}

	type modeAgg struct {
		mode *Mode
		agg  *epollAggregator
	}
	var aggs []modeAgg
	for _, m := range modes {
		if a, ok := m.aggregatorIfAny().(*epollAggregator); ok && a != nil {
			ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(a.epfd)}
			if err := unix.EpollCtl(outer, unix.EPOLL_CTL_ADD, a.epfd, &ev); err == nil {
				aggs = append(aggs, modeAgg{m, a})
			}
		}
	}

	timeoutMs := durationToEpollTimeout(sleep)

	var events [16]unix.EpollEvent
	var n int
	for {
		n, err = unix.EpollWait(outer, events[:], timeoutMs)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return waitOutcome{kind: waitError, err: &WaitBackendError{Cause: err}}
	}
	if n == 0 {
		return waitOutcome{kind: waitTimeout}
	}

	for i := 0; i < n; i++ {
		if wake != nil && int(events[i].Fd) == wake.readFD() {
			wake.drain()
			return waitOutcome{kind: waitWoken}
		}
	}

	for i := 0; i < n; i++ {
		for _, ma := range aggs {
			if int(events[i].Fd) != ma.agg.epfd {
				continue
			}
			srcs, err := ma.agg.poll(0)
			if err != nil {
				return waitOutcome{kind: waitError, err: &WaitBackendError{Cause: err}}
			}
			if len(srcs) > 0 {
				return waitOutcome{kind: waitDescriptorReady, source: srcs[0]}
			}
		}
	}
	return waitOutcome{kind: waitTimeout}
}

// durationToEpollTimeout converts a sleep duration to epoll_wait's
// millisecond timeout convention (-1 = block forever).
func durationToEpollTimeout(d time.Duration) int {
	if d == Forever {
		return -1
	}
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int(ms)
}
