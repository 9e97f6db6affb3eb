package pipeline

import (
	"fmt"
	"sync"
)

// State is a Pipeline's lifecycle state.
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	default:
		return "IDLE"
	}
}

// Pipeline owns an ordered collection of Nodes and manages their combined
// start/stop lifecycle. Pad linkage may cross Pipeline boundaries (the
// shared-memory publisher/subscriber pair is commonly split across two
// Pipelines in two processes); Pipeline only tracks the Nodes it was asked
// to own.
type Pipeline struct {
	mu    sync.Mutex
	state State
	nodes []Node
}

// New constructs an empty, Idle Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// AddNode registers n with the pipeline and returns it unchanged, so
// construction can be written as p.AddNode(NewSplitter(...)).
func (p *Pipeline) AddNode(n Node) Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes = append(p.nodes, n)
	return n
}

// AddFunc constructs a FuncNode wrapping fn, registers it, and returns it.
func (p *Pipeline) AddFunc(name string, fn func(Packet, Pad) bool) *FuncNode {
	n := NewFuncNode(name, fn)
	p.AddNode(n)
	return n
}

// Connect links out to in via out.Then(in).
func (p *Pipeline) Connect(out, in Pad) error {
	_, err := out.Then(in)
	return err
}

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start runs every node's infrastructure start() in insertion order,
// rolling back (stopping the already-started prefix in reverse order) on
// the first failure, and only then runs every node's user-overridable
// Start(). Infrastructure always starts before user resources, so a
// node's Start() can assume its pads are already live.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	p.state = Starting
	nodes := append([]Node(nil), p.nodes...)
	p.mu.Unlock()

	started := 0
	for i, n := range nodes {
		if err := n.start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				nodes[j].stop()
			}
			p.mu.Lock()
			p.state = Idle
			p.mu.Unlock()
			return fmt.Errorf("pipeline: start node %q: %w", n.Name(), err)
		}
		started++
	}

	for i, n := range nodes {
		if err := n.Start(); err != nil {
			// Roll the whole pipeline back: user Stop on the started
			// prefix, then infrastructure stop on every node.
			for j := i - 1; j >= 0; j-- {
				nodes[j].Stop()
			}
			for j := started - 1; j >= 0; j-- {
				nodes[j].stop()
			}
			p.mu.Lock()
			p.state = Idle
			p.mu.Unlock()
			return fmt.Errorf("pipeline: start node %q: %w", n.Name(), err)
		}
	}

	p.mu.Lock()
	p.state = Running
	p.mu.Unlock()
	return nil
}

// Stop runs every node's user-overridable Stop(), then every node's
// infrastructure stop(), both in insertion order.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.state = Stopping
	nodes := append([]Node(nil), p.nodes...)
	p.mu.Unlock()

	for _, n := range nodes {
		n.Stop()
	}
	for _, n := range nodes {
		n.stop()
	}

	p.mu.Lock()
	p.state = Idle
	p.mu.Unlock()
}
