//go:build linux || darwin

package runloop

import "golang.org/x/sys/unix"

// posixWake is a socketpair-based self-wake handle, per spec §4.2 ("poke is
// write-one-byte to the socketpair (POSIX)"). Grounded on the teacher's
// wakeup_linux.go wake-fd plumbing, but socketpair rather than eventfd, to
// match the spec text precisely; a socketpair also works unmodified on
// Darwin, where eventfd doesn't exist.
type posixWake struct {
	r, w int
}

func newWakeHandle() (wakeHandle, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return nil, err
		}
	}
	return &posixWake{r: fds[0], w: fds[1]}, nil
}

func (p *posixWake) wake() error {
	_, err := unix.Write(p.w, []byte{1})
	if err == unix.EAGAIN {
		// already pending wake-up, nothing further to do
		return nil
	}
	return err
}

func (p *posixWake) drain() {
	var buf [64]byte
	for {
		_, err := unix.Read(p.r, buf[:])
		if err != nil {
			return
		}
	}
}

func (p *posixWake) close() error {
	_ = unix.Close(p.w)
	return unix.Close(p.r)
}

// readFD returns the read end, for nesting into the outer epoll/kqueue
// wait.
func (p *posixWake) readFD() int { return p.r }
