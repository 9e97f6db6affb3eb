package pipeline

import (
	"fmt"
	"time"
)

// Hooks is the small, overridable surface of a Node: the processing
// callback invoked when a packet reaches one of the node's INPUT pads, and
// the user-level resource lifecycle (opening files, spawning worker
// goroutines) run after pad infrastructure has started.
//
// Concrete node types embed *BaseNode and pass themselves to NewBaseNode so
// BaseNode can dispatch into their overridden methods; this is the same
// self-referential-embedding pattern used for Go types that need a C++-style
// virtual override without an explicit vtable.
type Hooks interface {
	ProcessPacket(packet Packet, pad Pad) bool
	Start() error
	Stop()
}

// NoopHooks is the default Hooks implementation: ProcessPacket always
// returns false, Start/Stop do nothing. Node types that only need pad
// wiring (no per-node resources) can leave BaseNode's hooks unset.
type NoopHooks struct{}

func (NoopHooks) ProcessPacket(Packet, Pad) bool { return false }
func (NoopHooks) Start() error                   { return nil }
func (NoopHooks) Stop()                          {}

// ErrUnknownPad is the panic value used when a Pad is looked up by a name
// or index that was never registered. This is a programmer-error
// condition, not a recoverable runtime failure.
type ErrUnknownPad struct {
	Node  string
	Name  string
	Index int
	byIdx bool
}

func (e *ErrUnknownPad) Error() string {
	if e.byIdx {
		return fmt.Sprintf("pipeline: node %q has no pad at index %d", e.Node, e.Index)
	}
	return fmt.Sprintf("pipeline: node %q has no pad named %q", e.Node, e.Name)
}

// Node owns an ordered, name-addressable collection of Pads and a
// processing hook invoked when a packet arrives on an INPUT pad.
type Node interface {
	// AddInput registers a new INPUT SimplePad under name.
	AddInput(name string) Pad
	// AddQueueInput registers a new INPUT QueuePad under name with the
	// given capacity (DefaultQueuePadCapacity if capacity <= 0).
	AddQueueInput(name string, capacity int) *QueuePad
	// AddOutput registers a new OUTPUT SimplePad under name.
	AddOutput(name string) Pad

	// Pad looks up a pad by name; PadAt by registration index. Both panic
	// (via *ErrUnknownPad) if the pad does not exist; the API guarantees
	// pads exist after registration, so a miss here is a programmer error.
	Pad(name string) Pad
	PadAt(index int) Pad

	// PushPacket looks up the named pad and pushes packet into it.
	PushPacket(padName string, packet Packet, timeout time.Duration) (bool, error)

	// Name returns the node's diagnostic name (not required to be unique
	// across a Pipeline).
	Name() string

	// Start and Stop are the user-overridable resource hooks (opening
	// files, spawning worker goroutines), run by Pipeline after/before
	// the infrastructure start()/stop() phase.
	Start() error
	Stop()

	start() error
	stop()
	processPacket(packet Packet, pad Pad) bool
}

type padEntry struct {
	name string
	pad  Pad
}

// BaseNode implements Node's pad registry and lifecycle; embed it in a
// concrete node type and call NewBaseNode(self) from the constructor so
// ProcessPacket/Start/Stop overrides on self are dispatched to.
type BaseNode struct {
	name  string
	hooks Hooks
	pads  []padEntry
}

// NewBaseNode constructs a BaseNode named name. hooks may be the embedding
// type itself (to receive ProcessPacket/Start/Stop callbacks) or nil for
// NoopHooks.
func NewBaseNode(name string, hooks Hooks) *BaseNode {
	if hooks == nil {
		hooks = NoopHooks{}
	}
	return &BaseNode{name: name, hooks: hooks}
}

func (n *BaseNode) Name() string { return n.name }

func (n *BaseNode) AddInput(name string) Pad {
	pad := NewSimplePad(n, name, len(n.pads))
	pad.typ = Input
	n.pads = append(n.pads, padEntry{name: name, pad: pad})
	return pad
}

func (n *BaseNode) AddQueueInput(name string, capacity int) *QueuePad {
	pad := NewQueuePad(n, name, len(n.pads), capacity)
	pad.typ = Input
	n.pads = append(n.pads, padEntry{name: name, pad: pad})
	return pad
}

func (n *BaseNode) AddOutput(name string) Pad {
	pad := NewSimplePad(n, name, len(n.pads))
	pad.typ = Output
	n.pads = append(n.pads, padEntry{name: name, pad: pad})
	return pad
}

func (n *BaseNode) Pad(name string) Pad {
	for _, e := range n.pads {
		if e.name == name {
			return e.pad
		}
	}
	panic(&ErrUnknownPad{Node: n.name, Name: name})
}

func (n *BaseNode) PadAt(index int) Pad {
	if index < 0 || index >= len(n.pads) {
		panic(&ErrUnknownPad{Node: n.name, Index: index, byIdx: true})
	}
	return n.pads[index].pad
}

// PadAtSafe is PadAt without the panic: it reports false instead of
// panicking when index names no registered pad. Used by callers (the
// shared-memory Subscriber's channel routing) for which a missing pad is
// an expected, droppable condition rather than a programmer error.
func (n *BaseNode) PadAtSafe(index int) (Pad, bool) {
	if index < 0 || index >= len(n.pads) {
		return nil, false
	}
	return n.pads[index].pad, true
}

func (n *BaseNode) PushPacket(padName string, packet Packet, timeout time.Duration) (bool, error) {
	return n.Pad(padName).PushPacket(packet, timeout)
}

// OutputPads returns every registered OUTPUT pad, in registration order.
// Used by Splitter to fan a packet out to all of a node's outputs.
func (n *BaseNode) OutputPads() []Pad {
	var out []Pad
	for _, e := range n.pads {
		if e.pad.Type() == Output {
			out = append(out, e.pad)
		}
	}
	return out
}

// start starts every owned pad in registration order. If any pad's Start
// fails, already-started pads are stopped in reverse order and the error
// is returned; the infrastructure phase never leaves a partially-started
// node behind.
func (n *BaseNode) start() error {
	for i, e := range n.pads {
		if err := e.pad.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				n.pads[j].pad.Stop()
			}
			return fmt.Errorf("pipeline: node %q pad %q start: %w", n.name, e.name, err)
		}
	}
	return nil
}

func (n *BaseNode) stop() {
	for _, e := range n.pads {
		e.pad.Stop()
	}
}

func (n *BaseNode) processPacket(packet Packet, pad Pad) bool {
	return n.hooks.ProcessPacket(packet, pad)
}

// Start runs the node's user-overridable resource hook. Called by the
// Pipeline after every node's infrastructure start() has succeeded.
func (n *BaseNode) Start() error { return n.hooks.Start() }

// Stop runs the node's user-overridable resource hook. Called by the
// Pipeline before any node's infrastructure stop().
func (n *BaseNode) Stop() { n.hooks.Stop() }
