//go:build unix && !linux

package cancel

import (
	"os"

	"golang.org/x/sys/unix"
)

// wakeFD is the out-of-band wake-up descriptor for the poll handler. On
// platforms without eventfd it is a pipe pair: wake writes one byte to the
// write end, the read end joins the poll set.
type wakeFD struct {
	r, w int
}

func newWakeFD() (wakeFD, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return wakeFD{}, os.NewSyscallError("pipe", err)
	}
	unix.CloseOnExec(p[0])
	unix.CloseOnExec(p[1])
	return wakeFD{r: p[0], w: p[1]}, nil
}

// wake makes the read end readable.
func (w wakeFD) wake() error {
	buf := [1]byte{}
	for {
		_, err := unix.Write(w.w, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("write", err)
		}
		return nil
	}
}

// drain consumes the pending wake so the pipe can fire again.
func (w wakeFD) drain() error {
	var buf [1]byte
	for {
		_, err := unix.Read(w.r, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("read", err)
		}
		return nil
	}
}

// readFD returns the descriptor to add to the poll set.
func (w wakeFD) readFD() int { return w.r }

func (w wakeFD) close() {
	unix.Close(w.r)
	unix.Close(w.w)
}
