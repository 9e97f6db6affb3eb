package pipeline

import "time"

// SimplePad is a synchronous hand-off pad: queuePacket invokes the owning
// Node's ProcessPacket on the calling goroutine. There is no buffering and
// no worker; the call stack IS the pipeline, which makes SimplePad the
// right choice for a producer that drives its own cadence.
type SimplePad struct {
	padBase
}

// NewSimplePad constructs a SimplePad registered under name on parent at
// index. Node.AddInput / Node.AddOutput call this; user code should not
// need to construct pads directly.
func NewSimplePad(parent Node, name string, index int) *SimplePad {
	return &SimplePad{padBase: newPadBase(parent, name, index)}
}

func (p *SimplePad) PushPacket(packet Packet, timeout time.Duration) (bool, error) {
	return p.forward(p, packet, timeout)
}

func (p *SimplePad) Then(peer Pad) (Node, error) { return p.padBase.Then(p, peer) }

func (p *SimplePad) Start() error { return nil }
func (p *SimplePad) Stop()        {}

func (p *SimplePad) queuePacket(packet Packet, _ time.Duration) (bool, error) {
	return p.processPacket(p, packet), nil
}
