package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Memory layout constants for the segment header, slot table, and payload.
const (
	segmentMagic = "PLNESHM\x00"

	// SegmentHeaderSize is the fixed, 128-byte-aligned header size.
	SegmentHeaderSize = 128

	// SlotEntrySize is the fixed size of one ring slot entry: size
	// (uint32) + channel (uint32) + offset (uint64).
	SlotEntrySize = 16

	// DefaultSegmentSize is the default total segment size (1 MiB).
	DefaultSegmentSize = 1 << 20

	// DefaultRingCapacity is the default slot-ring capacity (slot count).
	DefaultRingCapacity = 1

	// ReattachQuantumMillis is how long, in milliseconds, a Subscriber
	// sleeps between attach attempts while the segment is absent or not
	// yet valid.
	ReattachQuantumMillis = 100
)

// segmentHeader is the in-memory layout of the shared segment's header. It
// is placed at byte 0 of the mapped region; every field that is read or
// written concurrently by the publisher and a subscriber goes through
// sync/atomic.
//
// Field order matters here beyond readability: the 8-byte fields are
// grouped first so Go's natural alignment doesn't insert padding between
// them and the 4-byte fields that follow, keeping sizeof(segmentHeader)
// exactly SegmentHeaderSize with no gaps for the slot table to accidentally
// land in.
type segmentHeader struct {
	totalSize     uint64
	writeOffset   uint64 // next payload byte to append into
	payloadOffset uint64 // offset to the payload area (past slot table)

	magic [8]byte

	version           uint32 // randomized incarnation cookie
	flags             uint32 // reserved
	valid             uint32 // publisher-set liveness flag (0/1)
	lockOwner         int32  // PID holding the ring lock, 0 = unlocked
	lockGeneration    uint32 // bumped on every successful acquisition
	condPacketReady   uint32 // producer-incremented wake sequence
	condSlotAvailable uint32 // consumer-incremented wake sequence
	capacity          uint32 // ring slot capacity (slot count)
	count             uint32 // live slot count
	head              uint32 // index of oldest live slot
	tail              uint32 // index of next slot to fill

	reserved [52]byte
}

// Segment is a mapped shared-memory region: a publisher creates it, any
// number of subscribers open it read-write to observe the same ring.
type Segment struct {
	file *os.File
	mem  []byte
	path string
}

func segmentPath(name string) string {
	base := "pipeline_shm_" + name
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", base)
	}
	return filepath.Join(os.TempDir(), base)
}

func alignTo64(n uint64) uint64 { return (n + 63) &^ 63 }

// layout computes the total segment size and payload offset for a ring of
// the given slot capacity and payload bytes.
func layout(ringCapacity uint32, payloadBytes uint64) (totalSize, payloadOffset uint64) {
	payloadOffset = alignTo64(SegmentHeaderSize + uint64(ringCapacity)*SlotEntrySize)
	totalSize = alignTo64(payloadOffset + payloadBytes)
	return totalSize, payloadOffset
}

// CreateSegment creates (unlinking any stale segment of the same name
// first; only one publisher per name is supported), maps, and
// initializes a new segment. valid is set true last.
func CreateSegment(name string, totalSize uint64, ringCapacity uint32) (*Segment, error) {
	if ringCapacity == 0 {
		ringCapacity = DefaultRingCapacity
	}
	if totalSize == 0 {
		totalSize = DefaultSegmentSize
	}

	path := segmentPath(name)
	_ = os.Remove(path) // unlink stale segment, if any

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("shm: create segment %q: %w", name, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	payloadOffset := alignTo64(SegmentHeaderSize + uint64(ringCapacity)*SlotEntrySize)
	if totalSize <= payloadOffset {
		cleanup()
		return nil, fmt.Errorf("shm: segment size %d too small for ring capacity %d", totalSize, ringCapacity)
	}

	if err := file.Truncate(int64(totalSize)); err != nil {
		cleanup()
		return nil, fmt.Errorf("shm: truncate segment %q: %w", name, err)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("shm: mmap segment %q: %w", name, err)
	}

	seg := &Segment{file: file, mem: mem, path: path}
	h := seg.header()

	copy(h.magic[:], segmentMagic)
	atomic.StoreUint32(&h.version, randomCookie())
	atomic.StoreUint64(&h.totalSize, totalSize)
	atomic.StoreInt32(&h.lockOwner, 0)
	atomic.StoreUint32(&h.lockGeneration, 0)
	atomic.StoreUint32(&h.condPacketReady, 0)
	atomic.StoreUint32(&h.condSlotAvailable, 0)
	atomic.StoreUint64(&h.writeOffset, payloadOffset)
	atomic.StoreUint32(&h.capacity, ringCapacity)
	atomic.StoreUint32(&h.count, 0)
	atomic.StoreUint32(&h.head, 0)
	atomic.StoreUint32(&h.tail, 0)
	atomic.StoreUint64(&h.payloadOffset, payloadOffset)
	atomic.StoreUint32(&h.valid, 1) // last, per spec

	return seg, nil
}

// OpenSegment opens and validates an existing segment created by
// CreateSegment, retrying is left to the caller (Subscriber polls).
func OpenSegment(name string) (*Segment, error) {
	path := segmentPath(name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open segment %q: %w", name, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: stat segment %q: %w", name, err)
	}
	if info.Size() < SegmentHeaderSize {
		file.Close()
		return nil, fmt.Errorf("shm: segment %q too small: %d bytes", name, info.Size())
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: mmap segment %q: %w", name, err)
	}

	seg := &Segment{file: file, mem: mem, path: path}
	if string(seg.header().magic[:]) != segmentMagic {
		seg.Close()
		return nil, fmt.Errorf("shm: segment %q has invalid magic", name)
	}
	return seg, nil
}

// Exists reports whether a segment of the given name exists and has its
// valid flag set.
func Exists(name string) bool {
	seg, err := OpenSegment(name)
	if err != nil {
		return false
	}
	defer seg.Close()
	return seg.Valid()
}

func (s *Segment) header() *segmentHeader {
	return (*segmentHeader)(unsafe.Pointer(&s.mem[0]))
}

// Valid reports the publisher-set liveness flag.
func (s *Segment) Valid() bool { return atomic.LoadUint32(&s.header().valid) != 0 }

// Invalidate clears the liveness flag and wakes every waiter on both wake
// sequences; called by the publisher on Stop.
func (s *Segment) Invalidate() {
	h := s.header()
	atomic.StoreUint32(&h.valid, 0)
	atomic.AddUint32(&h.condPacketReady, 1)
	atomic.AddUint32(&h.condSlotAvailable, 1)
	futexWake(&h.condPacketReady, maxWaiters)
	futexWake(&h.condSlotAvailable, maxWaiters)
}

// Version returns the segment's incarnation cookie.
func (s *Segment) Version() uint32 { return atomic.LoadUint32(&s.header().version) }

// Close unmaps and closes the underlying file. It does not unlink the
// path; call Unlink for that (only the publisher should).
func (s *Segment) Close() error {
	var firstErr error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil && firstErr == nil {
			firstErr = err
		}
		s.mem = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.file = nil
	}
	return firstErr
}

// Unlink removes the segment's backing file. Only the publisher should
// call this, on Stop.
func (s *Segment) Unlink() error {
	return os.Remove(s.path)
}

func randomCookie() uint32 {
	id := uuid.New()
	var v uint32
	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(id[i])
	}
	if v == 0 {
		v = 1
	}
	return v
}
