//go:build linux

package cancel

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// wakeFD is the out-of-band wake-up descriptor for the poll handler. On
// linux it is an eventfd: a single descriptor carrying a 64-bit counter, so
// repeated wakes coalesce and never fill a buffer.
type wakeFD struct {
	fd int
}

func newWakeFD() (wakeFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return wakeFD{}, os.NewSyscallError("eventfd", err)
	}
	return wakeFD{fd: fd}, nil
}

// wake makes the descriptor readable.
func (w wakeFD) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(w.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("write", err)
		}
		return nil
	}
}

// drain consumes the pending wake so the descriptor can fire again.
func (w wakeFD) drain() error {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
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
func (w wakeFD) readFD() int { return w.fd }

func (w wakeFD) close() { unix.Close(w.fd) }
