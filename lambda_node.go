package pipeline

// FuncNode wraps an inline handler as a Node's ProcessPacket hook, letting
// callers assemble small pipeline stages without declaring a named type.
type FuncNode struct {
	*BaseNode
	fn func(Packet, Pad) bool
}

// NewFuncNode constructs a FuncNode named name whose ProcessPacket calls
// fn for every packet arriving on any of its INPUT pads.
func NewFuncNode(name string, fn func(Packet, Pad) bool) *FuncNode {
	n := &FuncNode{fn: fn}
	n.BaseNode = NewBaseNode(name, n)
	return n
}

func (n *FuncNode) ProcessPacket(packet Packet, pad Pad) bool {
	if n.fn == nil {
		return false
	}
	return n.fn(packet, pad)
}

func (n *FuncNode) Start() error { return nil }
func (n *FuncNode) Stop()        {}
