package pipeline

import (
	"errors"
	"sync"
	"time"
)

// PadType identifies the direction of a Pad. A Pad starts UNDEFINED and is
// promoted to INPUT or OUTPUT the first time it is linked via Then; once
// set, the direction never changes.
type PadType int

const (
	Undefined PadType = iota
	Input
	Output
)

func (t PadType) String() string {
	switch t {
	case Input:
		return "INPUT"
	case Output:
		return "OUTPUT"
	default:
		return "UNDEFINED"
	}
}

// ErrNoPeer is returned by PushPacket when an OUTPUT pad has no linked peer.
var ErrNoPeer = errors.New("pipeline: output pad has no linked peer")

// Pad is a named connection point on a Node. Implementations are provided by
// this package (SimplePad, QueuePad); user code obtains Pads through
// Node.AddInput / Node.AddOutput and Node.Pad / Node.PadAt.
type Pad interface {
	// PushPacket delivers packet to the pad. OUTPUT pads forward to their
	// linked peer; INPUT pads queue according to the pad's variant. A
	// timeout of zero means "do not block".
	PushPacket(packet Packet, timeout time.Duration) (bool, error)

	// Then links this pad to peer, promoting UNDEFINED directions (this
	// pad to OUTPUT, peer to INPUT) and returns peer's owning Node so
	// calls can be chained: a.Then(b).Pad("x").Then(c).
	Then(peer Pad) (Node, error)

	// Unlink clears the peer link and promotes an UNDEFINED pad to OUTPUT.
	Unlink()

	// Start and Stop are lifecycle hooks invoked by the owning Node during
	// pipeline start/stop. SimplePad's are no-ops; QueuePad's manage the
	// worker goroutine.
	Start() error
	Stop()

	// Index returns this pad's stable position in its parent Node's pad
	// list.
	Index() int

	// Type returns the pad's current direction.
	Type() PadType

	// Node returns the owning Node.
	Node() Node

	// Name returns the name this pad was registered under.
	Name() string

	// queuePacket is the variant-specific enqueue/dispatch policy invoked
	// by PushPacket for INPUT pads. Unexported: only pads defined in this
	// package may implement the interface.
	queuePacket(packet Packet, timeout time.Duration) (bool, error)
}

// padBase implements the linkage, direction and forwarding contract shared
// by every Pad variant. Concrete pads embed padBase and supply queuePacket,
// Start and Stop.
type padBase struct {
	mu     sync.Mutex
	parent Node
	name   string
	index  int
	typ    PadType
	peer   Pad
}

func newPadBase(parent Node, name string, index int) padBase {
	return padBase{parent: parent, name: name, index: index, typ: Undefined}
}

func (p *padBase) Index() int   { return p.index }
func (p *padBase) Node() Node   { return p.parent }
func (p *padBase) Name() string { return p.name }

func (p *padBase) Type() PadType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typ
}

// Then installs the peer link under the pad's own lock, promoting
// UNDEFINED directions, then releases the lock before touching the peer so
// a push in flight never needs two pad locks at once.
func (p *padBase) Then(self Pad, peer Pad) (Node, error) {
	p.mu.Lock()
	if p.typ == Undefined {
		p.typ = Output
	}
	p.peer = peer
	p.mu.Unlock()

	if pb, ok := peer.(interface{ promoteInput() }); ok {
		pb.promoteInput()
	}
	return peer.Node(), nil
}

// promoteInput promotes an UNDEFINED pad to INPUT. Called on the peer side
// of Then.
func (p *padBase) promoteInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.typ == Undefined {
		p.typ = Input
	}
}

func (p *padBase) Unlink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peer = nil
	if p.typ == Undefined {
		p.typ = Output
	}
}

// forward is the shared PushPacket body: OUTPUT pads forward to the linked
// peer, INPUT pads defer to the variant's queuePacket. self is passed so
// the variant's own queuePacket (not padBase's, which has none) is invoked.
func (p *padBase) forward(self Pad, packet Packet, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	typ := p.typ
	peer := p.peer
	p.mu.Unlock()

	switch typ {
	case Output:
		if peer == nil {
			return false, ErrNoPeer
		}
		return peer.PushPacket(packet, timeout)
	case Input:
		return self.queuePacket(packet, timeout)
	default:
		// UNDEFINED pads behave as OUTPUT for the purposes of pushing: the
		// node-facing API always establishes a direction before use, so
		// this path is only reachable for a pad that was never linked.
		return false, ErrNoPeer
	}
}

// processPacket routes a dequeued (or directly handed-off) packet into the
// owning Node's ProcessPacket hook.
func (p *padBase) processPacket(self Pad, packet Packet) bool {
	return p.parent.processPacket(packet, self)
}
