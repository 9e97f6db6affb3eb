package shm

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// ErrOwnerDead is returned by lockRing when the lock was recovered from a
// holder whose process no longer exists; this package's substitute for
// a pthread robust mutex's EOWNERDEAD. The lock IS held on return. The
// caller is expected to treat the segment's contents as suspect and
// reattach rather than "make consistent and continue": the Subscriber
// always detaches and retries on this signal.
var ErrOwnerDead = errors.New("shm: ring lock recovered from a dead owner")

// ErrLockTimeout is returned by lockRing when the deadline passes before
// the lock could be acquired.
var ErrLockTimeout = errors.New("shm: ring lock wait timed out")

// lockRing acquires the segment's ring lock, blocking (with futex-based
// wait, not a spin loop) until it succeeds, the deadline passes, or the
// previous holder is found to be dead.
//
// The lock word is a PID: 0 means unlocked. A waiter that loses the CAS
// checks whether the recorded owner is still alive via a zero-signal
// kill(2); a dead owner's slot is stolen rather than waited on forever,
// exactly standing in for PTHREAD_MUTEX_ROBUST's EOWNERDEAD recovery path
// without requiring cgo or a pthread binding.
func (s *Segment) lockRing(deadline time.Time) error {
	h := s.header()
	self := int32(unix.Getpid())

	for {
		if atomic.CompareAndSwapInt32(&h.lockOwner, 0, self) {
			atomic.AddUint32(&h.lockGeneration, 1)
			return nil
		}

		owner := atomic.LoadInt32(&h.lockOwner)
		if owner != 0 && owner != self && !processAlive(owner) {
			if atomic.CompareAndSwapInt32(&h.lockOwner, owner, self) {
				atomic.AddUint32(&h.lockGeneration, 1)
				return ErrOwnerDead
			}
			continue // another waiter won the steal race; retry
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrLockTimeout
		}

		// Wake at least every 10ms to re-probe the owner: a holder that dies
		// while we are parked never bumps lockGeneration.
		gen := atomic.LoadUint32(&h.lockGeneration)
		waitUntil := time.Now().Add(10 * time.Millisecond)
		if !deadline.IsZero() && deadline.Before(waitUntil) {
			waitUntil = deadline
		}
		if err := waitBounded(&h.lockGeneration, gen, waitUntil); err != nil && err != ErrFutexTimeout {
			return err
		}
	}
}

// unlockRing releases the ring lock and wakes every waiter.
func (s *Segment) unlockRing() {
	h := s.header()
	atomic.StoreInt32(&h.lockOwner, 0)
	atomic.AddUint32(&h.lockGeneration, 1)
	futexWake(&h.lockGeneration, maxWaiters)
}

// processAlive reports whether pid names a live process, using a
// zero-signal kill(2): ESRCH means gone, EPERM means it exists but is
// owned by someone else (still alive for our purposes).
func processAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	return err == nil || err == unix.EPERM
}

// waitBounded waits on the futex word at addr (expected to still equal
// val) until woken or deadline passes. A zero deadline waits indefinitely.
func waitBounded(addr *uint32, val uint32, deadline time.Time) error {
	if deadline.IsZero() {
		return futexWait(addr, val)
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return ErrFutexTimeout
	}
	return futexWaitTimeout(addr, val, remaining)
}

// maxWaiters bounds a FUTEX_WAKE call; larger than any realistic number of
// goroutines contending on one segment's ring lock.
const maxWaiters = 1 << 16
