//go:build darwin

package runloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// wait implements the platform wait backend (spec §4.3) on Darwin: an outer
// kqueue, constructed fresh per wait, registering every current mode's
// aggregation kqueue fd plus the self-wake socketpair's read end for
// EVFILT_READ (a kqueue fd is itself a valid kevent ident for nested
// monitoring).
func (rl *RunLoop) wait(modes []*Mode, sleep time.Duration) waitOutcome {
	outer, err := unix.Kqueue()
	if err != nil {
		return waitOutcome{kind: waitError, err: &WaitBackendError{Cause: err}}
	}
	defer unix.Close(outer)

	var changes []unix.Kevent_t
	wake, _ := rl.wake.(*posixWake)
	if wake != nil {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(wake.readFD()),
			Filter: unix.EVFILT_READ,
			Flags:  unix.EV_ADD | unix.EV_ENABLE,
		})
	}

	type modeAgg struct {
		mode *Mode
		agg  *kqueueAggregator
	}
	var aggs []modeAgg
	for _, m := range modes {
		if a, ok := m.aggregatorIfAny().(*kqueueAggregator); ok && a != nil {
			changes = append(changes, unix.Kevent_t{
				Ident:  uint64(a.kq),
				Filter: unix.EVFILT_READ,
				Flags:  unix.EV_ADD | unix.EV_ENABLE,
			})
			aggs = append(aggs, modeAgg{m, a})
		}
	}
	if len(changes) > 0 {
		if _, err := unix.Kevent(outer, changes, nil, nil); err != nil {
			return waitOutcome{kind: waitError, err: &WaitBackendError{Cause: err}}
		}
	}

	ts, blocking := durationToTimespec(sleep)

	var events [16]unix.Kevent_t
	var n int
	for {
		if blocking {
			n, err = unix.Kevent(outer, nil, events[:], nil)
		} else {
			n, err = unix.Kevent(outer, nil, events[:], ts)
		}
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
		if wake != nil && int(events[i].Ident) == wake.readFD() {
			wake.drain()
			return waitOutcome{kind: waitWoken}
		}
	}

	for i := 0; i < n; i++ {
		for _, ma := range aggs {
			if int(events[i].Ident) != ma.agg.kq {
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

func durationToTimespec(d time.Duration) (*unix.Timespec, bool) {
	if d == Forever {
		return nil, true
	}
	if d < 0 {
		d = 0
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())
	return &ts, false
}
