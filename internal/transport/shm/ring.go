package shm

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"
)

// ErrNotMapped is returned when an operation is attempted on a Segment
// that has already been closed/unmapped.
var ErrNotMapped = errors.New("shm: segment not mapped")

// ringSlot is one entry of the segment's slot table: the size and channel
// of one queued packet, plus its byte offset into the payload area.
type ringSlot struct {
	size    uint32
	channel uint32
	offset  uint64
}

// Ring is the high-level blocking publish/consume API over a Segment's
// slot table and payload area. It owns no state of its own beyond the
// Segment reference; all ring state lives in shared memory, so every
// process mapping the same Segment observes the same Ring.
type Ring struct {
	seg *Segment
}

// NewRing wraps seg with the Ring API.
func NewRing(seg *Segment) *Ring { return &Ring{seg: seg} }

func (r *Ring) slotAt(index uint32) *ringSlot {
	base := unsafe.Pointer(&r.seg.mem[0])
	return (*ringSlot)(unsafe.Pointer(uintptr(base) + SegmentHeaderSize + uintptr(index)*SlotEntrySize))
}

// Publish serializes one packet into the ring under channel, blocking
// until a slot is free, the deadline passes, or marshal fails. A zero
// deadline blocks indefinitely.
func (r *Ring) Publish(channel uint32, marshal func(buf []byte) (int, error), deadline time.Time) error {
	if r.seg == nil || r.seg.mem == nil {
		return ErrNotMapped
	}
	h := r.seg.header()

	for {
		lockErr := r.seg.lockRing(deadline)
		if lockErr != nil && lockErr != ErrOwnerDead {
			return lockErr
		}

		capacity := atomic.LoadUint32(&h.capacity)
		if atomic.LoadUint32(&h.count) < capacity {
			break // slot available, lock held; fall through to write
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			r.seg.unlockRing()
			return ErrLockTimeout
		}
		gen := atomic.LoadUint32(&h.condSlotAvailable)
		r.seg.unlockRing()
		_ = waitBounded(&h.condSlotAvailable, gen, deadline) // re-check on next iteration regardless
	}
	defer r.seg.unlockRing()

	segLen := uint64(len(r.seg.mem))
	payloadOffset := atomic.LoadUint64(&h.payloadOffset)
	writeOffset := atomic.LoadUint64(&h.writeOffset)

	n, err := marshal(r.seg.mem[writeOffset:])
	if err != nil || n < 0 {
		// Insufficient tail space (or a transient marshal error): reset
		// to the payload base and retry exactly once, per spec.
		writeOffset = payloadOffset
		n, err = marshal(r.seg.mem[writeOffset:])
		if err != nil || n < 0 {
			return fmt.Errorf("shm: marshal packet into ring: %w", err)
		}
	}

	tail := atomic.LoadUint32(&h.tail)
	slot := r.slotAt(tail)
	atomic.StoreUint32(&slot.size, uint32(n))
	atomic.StoreUint32(&slot.channel, channel)
	atomic.StoreUint64(&slot.offset, writeOffset)

	capacity := atomic.LoadUint32(&h.capacity)
	atomic.StoreUint32(&h.tail, (tail+1)%capacity)
	atomic.StoreUint32(&h.count, atomic.LoadUint32(&h.count)+1)

	newWriteOffset := writeOffset + uint64(n)
	if newWriteOffset >= segLen {
		newWriteOffset = payloadOffset
	}
	atomic.StoreUint64(&h.writeOffset, newWriteOffset)

	atomic.AddUint32(&h.condPacketReady, 1)
	futexWake(&h.condPacketReady, 1)
	return nil
}

// Consume pops the oldest slot, copying its payload into a caller-owned
// buffer before the slot is released. The copy happens while the ring
// lock is still held, and the slot is only freed (head/count advanced,
// condSlotAvailable signalled) once the bytes are out of the payload area,
// so a later Publish cannot change the returned bytes. Publish does not
// check for live records when it wraps writeOffset, so a record whose
// bytes were overwritten before Consume reached it is returned as it now
// reads.
//
// Consume blocks for up to quantum waiting for data to arrive. It returns
// ErrFutexTimeout if nothing arrived in that window (the caller's worker
// loop should simply re-check its stop flag and call Consume again), or
// ErrOwnerDead if the ring lock was recovered from a dead publisher (the
// caller should detach and reattach to a fresh incarnation).
func (r *Ring) Consume(quantum time.Duration) (channel uint32, payload []byte, err error) {
	if r.seg == nil || r.seg.mem == nil {
		return 0, nil, ErrNotMapped
	}
	h := r.seg.header()
	deadline := time.Now().Add(quantum)

	for {
		lockErr := r.seg.lockRing(time.Time{})
		if lockErr == ErrOwnerDead {
			r.seg.unlockRing()
			return 0, nil, ErrOwnerDead
		}
		if lockErr != nil {
			return 0, nil, lockErr
		}

		if atomic.LoadUint32(&h.count) > 0 {
			head := atomic.LoadUint32(&h.head)
			slot := r.slotAt(head)
			ch := atomic.LoadUint32(&slot.channel)
			size := atomic.LoadUint32(&slot.size)
			offset := atomic.LoadUint64(&slot.offset)

			out := make([]byte, size)
			copy(out, r.seg.mem[offset:offset+uint64(size)])

			capacity := atomic.LoadUint32(&h.capacity)
			atomic.StoreUint32(&h.head, (head+1)%capacity)
			atomic.StoreUint32(&h.count, atomic.LoadUint32(&h.count)-1)

			atomic.AddUint32(&h.condSlotAvailable, 1)
			r.seg.unlockRing()
			futexWake(&h.condSlotAvailable, 1)
			return ch, out, nil
		}

		if !time.Now().Before(deadline) {
			r.seg.unlockRing()
			return 0, nil, ErrFutexTimeout
		}

		gen := atomic.LoadUint32(&h.condPacketReady)
		r.seg.unlockRing()
		_ = waitBounded(&h.condPacketReady, gen, deadline)
	}
}

// State is a snapshot of the ring counters, useful for diagnostics and
// tests asserting the ring invariants.
type State struct {
	Capacity uint32
	Count    uint32
	Head     uint32
	Tail     uint32
}

// DebugState returns a snapshot of the current ring counters.
func (r *Ring) DebugState() State {
	h := r.seg.header()
	return State{
		Capacity: atomic.LoadUint32(&h.capacity),
		Count:    atomic.LoadUint32(&h.count),
		Head:     atomic.LoadUint32(&h.head),
		Tail:     atomic.LoadUint32(&h.tail),
	}
}
