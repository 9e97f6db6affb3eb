package pipeline

import (
	"sync"
	"time"
)

// DefaultQueuePadCapacity is the FIFO depth used when a QueuePad is
// constructed without an explicit capacity.
const DefaultQueuePadCapacity = 4

type queuedPacket struct {
	packet  Packet
	timeout time.Duration
}

// QueuePad is a bounded FIFO pad with a dedicated worker goroutine. It
// decouples a producer's PushPacket from the owning Node's ProcessPacket:
// the producer blocks (up to a timeout) only while the queue is full, and
// the worker dispatches strictly in FIFO order on its own goroutine.
type QueuePad struct {
	padBase

	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	capacity int
	items    []queuedPacket
	running  bool
	wg       sync.WaitGroup
}

// NewQueuePad constructs a QueuePad registered under name on parent at
// index, with the given capacity (DefaultQueuePadCapacity if capacity <=
// 0).
func NewQueuePad(parent Node, name string, index int, capacity int) *QueuePad {
	if capacity <= 0 {
		capacity = DefaultQueuePadCapacity
	}
	p := &QueuePad{
		padBase:  newPadBase(parent, name, index),
		capacity: capacity,
	}
	p.notFull = sync.NewCond(&p.mu)
	p.notEmpty = sync.NewCond(&p.mu)
	return p
}

func (p *QueuePad) PushPacket(packet Packet, timeout time.Duration) (bool, error) {
	return p.forward(p, packet, timeout)
}

func (p *QueuePad) Then(peer Pad) (Node, error) { return p.padBase.Then(p, peer) }

// Start is idempotent: if the worker is already running, it is a no-op.
func (p *QueuePad) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.worker()
	return nil
}

// Stop is idempotent: if the worker was never started, it is a no-op.
// Otherwise it flips the running flag, wakes both condition variables, and
// joins the worker goroutine.
func (p *QueuePad) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.notFull.Broadcast()
	p.notEmpty.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// condWaitTimeout waits on cond, bounded by d. It must be called with mu
// held (the same mutex cond was created with); it returns with mu held
// again, exactly like sync.Cond.Wait. A non-positive d waits indefinitely,
// relying on the caller (Stop) to eventually broadcast.
func condWaitTimeout(mu *sync.Mutex, cond *sync.Cond, d time.Duration) {
	if d > 0 {
		timer := time.AfterFunc(d, func() {
			mu.Lock()
			cond.Broadcast()
			mu.Unlock()
		})
		defer timer.Stop()
	}
	cond.Wait()
}

// queuePacket appends packet to the FIFO, waiting up to timeout for space
// if the queue is full. A queuePacket call that wakes to find the pad
// stopped returns false regardless of capacity; a call that wakes on
// timeout with the queue still full also returns false.
func (p *QueuePad) queuePacket(packet Packet, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	p.mu.Lock()
	defer p.mu.Unlock()

	for p.running && len(p.items) >= p.capacity {
		remaining := time.Until(deadline)
		if timeout <= 0 || remaining <= 0 {
			return false, nil
		}
		condWaitTimeout(&p.mu, p.notFull, remaining)
	}

	if !p.running || len(p.items) >= p.capacity {
		return false, nil
	}

	p.items = append(p.items, queuedPacket{packet: packet, timeout: timeout})
	p.notEmpty.Broadcast()
	return true, nil
}

// worker is the QueuePad's dedicated consumer goroutine: it dequeues in
// FIFO order and invokes the owning Node's ProcessPacket outside the lock,
// so a slow or blocking hook never stalls a concurrent PushPacket. Stop
// still waits for a hook already in progress to return.
func (p *QueuePad) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.running && len(p.items) == 0 {
			condWaitTimeout(&p.mu, p.notEmpty, 0)
		}
		if !p.running && len(p.items) == 0 {
			p.mu.Unlock()
			return
		}
		item := p.items[0]
		p.items = p.items[1:]
		p.mu.Unlock()

		p.notFull.Broadcast()
		p.processPacket(p, item.packet)
	}
}
