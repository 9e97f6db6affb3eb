package pipeline

// Splitter fans out every packet arriving on its single INPUT pad ("in")
// to every OUTPUT pad registered on it, in registration order. It does not
// clone the packet; every output observes the same shared reference, so
// it must only be used with packets whose consumers don't mutate them.
//
// A push failure to one output does not stop the others; the overall
// return is the logical AND of every output's push result.
type Splitter struct {
	*BaseNode
	in Pad
}

// NewSplitter constructs a Splitter named name with its input pad
// registered under inputName (the zero value "" defaults to "in"). Add
// outputs afterward with AddOutput.
func NewSplitter(name string, inputName string) *Splitter {
	if inputName == "" {
		inputName = "in"
	}
	s := &Splitter{}
	s.BaseNode = NewBaseNode(name, s)
	s.in = s.AddInput(inputName)
	return s
}

// In returns the Splitter's single input pad.
func (s *Splitter) In() Pad { return s.in }

func (s *Splitter) ProcessPacket(packet Packet, pad Pad) bool {
	if pad != s.in {
		return false
	}
	ok := true
	for _, out := range s.OutputPads() {
		pushed, _ := out.PushPacket(packet, 0)
		ok = ok && pushed
	}
	return ok
}

func (s *Splitter) Start() error { return nil }
func (s *Splitter) Stop()        {}
