package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/lexus2k/pipeline/internal/transport/shm"
)

// PublisherOption configures a Publisher at construction time.
type PublisherOption func(*publisherConfig)

type publisherConfig struct {
	segmentSize  uint64
	ringCapacity uint32
	pushTimeout  time.Duration
}

// WithSegmentSize sets the total shared-memory segment size, including the
// header and slot table. Defaults to shm.DefaultSegmentSize.
func WithSegmentSize(bytes uint64) PublisherOption {
	return func(c *publisherConfig) { c.segmentSize = bytes }
}

// WithRingCapacity sets the slot-ring capacity (number of in-flight packets
// the segment can hold at once). Defaults to shm.DefaultRingCapacity.
func WithRingCapacity(slots uint32) PublisherOption {
	return func(c *publisherConfig) { c.ringCapacity = slots }
}

// WithPushTimeout bounds how long Publish waits for a free ring slot. Zero
// (the default) blocks indefinitely.
func WithPushTimeout(d time.Duration) PublisherOption {
	return func(c *publisherConfig) { c.pushTimeout = d }
}

// Publisher is a Node with a single INPUT pad ("in") that serializes every
// packet it receives into a shared-memory segment for one or more
// Subscriber processes to consume. The packet type must implement
// Marshaler; packets that don't are rejected (ProcessPacket returns false).
type Publisher struct {
	*BaseNode
	in Pad

	segmentName string
	cfg         publisherConfig

	mu   sync.Mutex
	seg  *shm.Segment
	ring *shm.Ring
}

// NewPublisher constructs a Publisher node named nodeName, backed by a
// shared-memory segment named segmentName (segment names are a distinct
// namespace from node names; several pipelines can share a segment name to
// talk to each other).
func NewPublisher(nodeName, segmentName string, opts ...PublisherOption) *Publisher {
	cfg := publisherConfig{
		segmentSize:  shm.DefaultSegmentSize,
		ringCapacity: shm.DefaultRingCapacity,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Publisher{segmentName: segmentName, cfg: cfg}
	p.BaseNode = NewBaseNode(nodeName, p)
	p.in = p.AddInput("in")
	return p
}

// In returns the publisher's sole INPUT pad.
func (p *Publisher) In() Pad { return p.in }

// Start creates and initializes the shared-memory segment. Called by
// Pipeline after pad infrastructure has started.
func (p *Publisher) Start() error {
	seg, err := shm.CreateSegment(p.segmentName, p.cfg.segmentSize, p.cfg.ringCapacity)
	if err != nil {
		return fmt.Errorf("pipeline: publisher %q: %w", p.Name(), err)
	}
	p.mu.Lock()
	p.seg = seg
	p.ring = shm.NewRing(seg)
	p.mu.Unlock()
	return nil
}

// Stop invalidates and unlinks the segment, then unmaps it. Subscribers
// still attached will see Valid() go false and detach on their own.
func (p *Publisher) Stop() {
	p.mu.Lock()
	seg := p.seg
	p.seg = nil
	p.ring = nil
	p.mu.Unlock()

	if seg == nil {
		return
	}
	seg.Invalidate()
	seg.Unlink()
	seg.Close()
}

// ProcessPacket serializes packet into the ring under pad's index as the
// channel. It returns false if packet does not implement Marshaler, the
// segment has not been started, or the write fails (timed out, or the
// segment was torn down mid-push).
func (p *Publisher) ProcessPacket(packet Packet, pad Pad) bool {
	marshaler, ok := packet.(Marshaler)
	if !ok {
		return false
	}

	p.mu.Lock()
	ring := p.ring
	p.mu.Unlock()
	if ring == nil {
		return false
	}

	var deadline time.Time
	if p.cfg.pushTimeout > 0 {
		deadline = time.Now().Add(p.cfg.pushTimeout)
	}
	if err := ring.Publish(uint32(pad.Index()), marshaler.MarshalTo, deadline); err != nil {
		return false
	}
	return true
}

// SubscriberOption configures a Subscriber at construction time.
type SubscriberOption func(*subscriberConfig)

type subscriberConfig struct {
	pollQuantum     time.Duration
	reattachQuantum time.Duration
	pushTimeout     time.Duration
}

// WithPollQuantum sets how long a Subscriber's worker blocks on one Consume
// call before re-checking its stop flag. Defaults to 100ms, matching the
// default reattach quantum.
func WithPollQuantum(d time.Duration) SubscriberOption {
	return func(c *subscriberConfig) { c.pollQuantum = d }
}

// WithReattachQuantum sets how long a Subscriber sleeps between attempts to
// attach to a segment that does not yet exist, or has gone invalid.
func WithReattachQuantum(d time.Duration) SubscriberOption {
	return func(c *subscriberConfig) { c.reattachQuantum = d }
}

// WithDownstreamTimeout bounds how long the Subscriber's worker waits to
// push a deserialized packet to its OUTPUT pad. Zero (the default) does not
// wait: a packet refused by a full downstream QueuePad is dropped.
func WithDownstreamTimeout(d time.Duration) SubscriberOption {
	return func(c *subscriberConfig) { c.pushTimeout = d }
}

// Subscriber is a Node with one or more OUTPUT pads that attaches to a
// shared-memory segment created by a Publisher (in this or another
// process), deserializes packets off the ring, and routes each one to the
// OUTPUT pad registered at the index matching its channel. A packet whose
// channel names no registered pad is dropped. newPacket constructs a
// fresh, empty Packet for each received message; it must implement
// Unmarshaler.
type Subscriber struct {
	*BaseNode
	out Pad

	segmentName string
	newPacket   func() Packet
	cfg         subscriberConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSubscriber constructs a Subscriber node named nodeName, attaching to
// the shared-memory segment named segmentName. It registers one OUTPUT pad
// ("out", index 0); call AddOutput for additional channels before Start.
func NewSubscriber(nodeName, segmentName string, newPacket func() Packet, opts ...SubscriberOption) *Subscriber {
	cfg := subscriberConfig{
		pollQuantum:     shm.ReattachQuantumMillis * time.Millisecond,
		reattachQuantum: shm.ReattachQuantumMillis * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Subscriber{segmentName: segmentName, newPacket: newPacket, cfg: cfg}
	s.BaseNode = NewBaseNode(nodeName, s)
	s.out = s.AddOutput("out")
	return s
}

// Out returns the subscriber's pad registered at index 0.
func (s *Subscriber) Out() Pad { return s.out }

// Start spawns the worker goroutine that attaches to the segment and
// forwards packets downstream. Attachment itself is attempted lazily in the
// worker (the publisher may not have started yet), so Start never blocks.
// Start is idempotent: while a worker is running it is a no-op.
func (s *Subscriber) Start() error {
	if s.stopCh != nil {
		select {
		case <-s.stopCh:
		default:
			return nil // already running
		}
	}
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop signals the worker to exit and waits for it to do so.
func (s *Subscriber) Stop() {
	if s.stopCh != nil {
		close(s.stopCh)
	}
	s.wg.Wait()
}

func (s *Subscriber) run() {
	defer s.wg.Done()

	for {
		seg, ring, ok := s.attach()
		if !ok {
			return // stop requested while attaching
		}
		if !s.drain(seg, ring) {
			seg.Close()
			return // stop requested
		}
		seg.Close() // ring reported ErrOwnerDead or the segment went invalid; reattach
	}
}

// attach blocks, retrying at s.cfg.reattachQuantum, until a valid segment
// named s.segmentName exists or Stop is called.
func (s *Subscriber) attach() (*shm.Segment, *shm.Ring, bool) {
	for {
		select {
		case <-s.stopCh:
			return nil, nil, false
		default:
		}

		seg, err := shm.OpenSegment(s.segmentName)
		if err == nil && seg.Valid() {
			return seg, shm.NewRing(seg), true
		}
		if err == nil {
			seg.Close()
		}

		select {
		case <-s.stopCh:
			return nil, nil, false
		case <-time.After(s.cfg.reattachQuantum):
		}
	}
}

// drain consumes packets off ring and forwards each to the pad registered
// at its channel index until the
// segment is invalidated, a dead owner is recovered (signalling the
// publisher's incarnation ended), or Stop is requested. It returns false
// only when Stop was requested.
func (s *Subscriber) drain(seg *shm.Segment, ring *shm.Ring) bool {
	for {
		select {
		case <-s.stopCh:
			return false
		default:
		}

		if !seg.Valid() {
			return true
		}

		channel, payload, err := ring.Consume(s.cfg.pollQuantum)
		switch {
		case err == shm.ErrOwnerDead:
			return true
		case err == shm.ErrFutexTimeout:
			continue
		case err != nil:
			return true
		}

		packet := s.newPacket()
		if unmarshaler, ok := packet.(Unmarshaler); ok {
			if _, err := unmarshaler.UnmarshalFrom(payload); err != nil {
				continue // corrupt or truncated record; skip it
			}
		}
		pad, ok := s.PadAtSafe(int(channel))
		if !ok {
			continue // no OUTPUT pad registered for this channel; drop
		}
		_, _ = pad.PushPacket(packet, s.cfg.pushTimeout)
	}
}

// ProcessPacket is never invoked: Subscriber has no INPUT pads.
func (s *Subscriber) ProcessPacket(Packet, Pad) bool { return false }
