//go:build windows

package runloop

import (
	"time"

	"golang.org/x/sys/windows"
)

// wait implements the platform wait backend (spec §4.3) on Windows: build
// the HANDLE[] from every current mode's handle map plus the self-wake
// event, and call WaitForMultipleObjects. Respects
// windows.MAXIMUM_WAIT_OBJECTS by erroring rather than silently truncating
// (spec §7 "implementations should document per-mode caps rather than
// silently truncating"); RunLoop's per-mode add path already enforces
// WithMaxWaitObjects at registration time, so this is a defensive check.
func (rl *RunLoop) wait(modes []*Mode, sleep time.Duration) waitOutcome {
	wake, _ := rl.wake.(*windowsWake)

	var waitHandles []windows.Handle
	var waitSources []*Source
	if wake != nil {
		waitHandles = append(waitHandles, wake.handle())
		waitSources = append(waitSources, nil)
	}
	for _, m := range modes {
		a, ok := m.aggregatorIfAny().(*handleAggregator)
		if !ok || a == nil {
			continue
		}
		for h, s := range a.snapshot() {
			waitHandles = append(waitHandles, h)
			waitSources = append(waitSources, s)
		}
	}
	if len(waitHandles) > windows.MAXIMUM_WAIT_OBJECTS {
		return waitOutcome{kind: waitError, err: ErrWaitObjectLimit}
	}
	if len(waitHandles) == 0 {
		// Nothing to wait on but the deadline; sleep it out cooperatively.
		if sleep > 0 && sleep != Forever {
			time.Sleep(sleep)
		}
		return waitOutcome{kind: waitTimeout}
	}

	timeoutMs := durationToWaitMs(sleep)
	r, err := windows.WaitForMultipleObjects(waitHandles, false, timeoutMs)
	if err != nil {
		return waitOutcome{kind: waitError, err: &WaitBackendError{Cause: err}}
	}

	const waitObject0 = windows.WAIT_OBJECT_0
	if r == windows.WAIT_TIMEOUT {
		return waitOutcome{kind: waitTimeout}
	}
	idx := int(r - waitObject0)
	if idx < 0 || idx >= len(waitHandles) {
		return waitOutcome{kind: waitError, err: &WaitBackendError{Message: "runloop: WaitForMultipleObjects returned an unexpected index"}}
	}
	if waitSources[idx] == nil {
		wake.drain()
		return waitOutcome{kind: waitWoken}
	}
	return waitOutcome{kind: waitDescriptorReady, source: waitSources[idx]}
}

func durationToWaitMs(d time.Duration) uint32 {
	if d == Forever {
		return windows.INFINITE
	}
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}
