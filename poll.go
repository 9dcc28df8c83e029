//go:build unix

package cancel

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// pollHandler wakes a blocked poll(2) by making an out-of-band descriptor
// readable. The descriptor is polled alongside the caller's fd; Cancel
// writes to it, Reset drains it so it can fire again.
type pollHandler struct {
	wake wakeFD
}

func newPollHandler() (*pollHandler, error) {
	w, err := newWakeFD()
	if err != nil {
		return nil, err
	}
	return &pollHandler{wake: w}, nil
}

func (h *pollHandler) Cancel() {
	if err := h.wake.wake(); err != nil {
		panic(err)
	}
}

func (h *pollHandler) Reset() {
	if err := h.wake.drain(); err != nil {
		panic(err)
	}
}

func (h *pollHandler) close() { h.wake.close() }

// Poll waits until fd is ready for any of events or t is cancelled. It
// returns the revents mask of fd, which is zero when the wait was cancelled,
// and a non-nil error only when a system call failed.
func Poll(fd int, events int16, t Token) (int16, error) {
	return PollTimeout(fd, events, -1, t)
}

// PollTimeout is Poll with a timeout; a negative timeout blocks forever. A
// timed-out wait returns a zero mask and a nil error, just like a cancelled
// one: callers that need to tell them apart check t.IsCancelled.
func PollTimeout(fd int, events int16, timeout time.Duration, t Token) (int16, error) {
	h, err := newPollHandler()
	if err != nil {
		return 0, err
	}
	defer h.close()

	var g Guard
	g.Register(t, h)
	defer g.Release()
	if g.IsCancelled() {
		return 0, nil
	}

	fds := [2]unix.PollFd{
		{Fd: int32(fd), Events: events},
		{Fd: int32(h.wake.readFD()), Events: unix.POLLIN},
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	for {
		_, err := unix.Poll(fds[:], ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("poll", err)
		}
		return fds[0].Revents, nil
	}
}

// Read waits cancellably until fd is readable and then reads into p. It
// returns 0 bytes and a nil error when the wait was cancelled.
func Read(fd int, p []byte, t Token) (int, error) {
	revents, err := Poll(fd, unix.POLLIN, t)
	if err != nil {
		return 0, err
	}
	if revents&unix.POLLIN == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("read", err)
		}
		return n, nil
	}
}
