//go:build windows

package runloop

import "golang.org/x/sys/windows"

// windowsWake is a manual-reset-event self-wake handle, per spec §4.2's
// Windows realization ("SetEvent"). Adapted from the teacher's IOCP-based
// wakeup_windows.go (PostQueuedCompletionStatus) to the manual-reset-event
// model spec.md specifies, since this engine's Windows wait step is
// WaitForMultipleObjects over a handle set, not an IOCP completion port.
type windowsWake struct {
	h windows.Handle
}

func newWakeHandle() (wakeHandle, error) {
	h, err := windows.CreateEvent(nil, 1 /* manual reset */, 0, nil)
	if err != nil {
		return nil, err
	}
	return &windowsWake{h: h}, nil
}

func (w *windowsWake) wake() error {
	return windows.SetEvent(w.h)
}

func (w *windowsWake) drain() {
	_ = windows.ResetEvent(w.h)
}

func (w *windowsWake) close() error {
	return windows.CloseHandle(w.h)
}

func (w *windowsWake) handle() windows.Handle { return w.h }
