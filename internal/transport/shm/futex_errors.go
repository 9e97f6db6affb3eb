package shm

import "errors"

// ErrFutexTimeout is returned by futexWaitTimeout when the wait times out
// before the word at addr changes.
var ErrFutexTimeout = errors.New("shm: futex wait timed out")
