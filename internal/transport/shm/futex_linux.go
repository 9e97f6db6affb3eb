//go:build linux && (amd64 || arm64)

package shm

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux futex operation codes (linux/futex.h). golang.org/x/sys/unix does
// not export these, so they are defined locally.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// futexWait blocks while the word at addr still equals val, waking when
// another goroutine (in this or a peer process) calls futexWake on the
// same address. Callers must re-check their condition after this returns:
// spurious wakes and lost-wake races are both possible, exactly as for a
// pthread condition variable.
func futexWait(addr *uint32, val uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(val),
		0, // infinite timeout
		0, 0,
	)
	if errno != 0 && errno != unix.EAGAIN && errno != unix.EINTR {
		return errno
	}
	return nil
}

// futexWaitTimeout is futexWait bounded by d. It returns ErrFutexTimeout
// if d elapses before a wake.
func futexWaitTimeout(addr *uint32, val uint32, d time.Duration) error {
	if d <= 0 {
		return futexWait(addr, val)
	}
	ts := unix.Timespec{Sec: int64(d / time.Second), Nsec: int64(d % time.Second)}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(val),
		uintptr(unsafe.Pointer(&ts)),
		0, 0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrFutexTimeout
	default:
		return errno
	}
}

// futexWake wakes up to n waiters blocked on addr, returning how many
// were actually woken.
func futexWake(addr *uint32, n int) (int, error) {
	woken, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWakeOp,
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(woken), nil
}
