package pipeline

// Packet is the opaque payload exchanged between Nodes. The runtime never
// inspects payload contents; it only moves the reference (or, for the
// shared-memory transport, the serialized bytes) from producer to consumer.
//
// Marshaler and Unmarshaler are optional capabilities: a Packet that never
// crosses a process boundary need not implement them. The shared-memory
// publisher type-asserts for Marshaler before writing to the ring, and the
// subscriber type-asserts for Unmarshaler on the fresh packet it constructs.
type Packet interface {
	// Marker method so arbitrary values aren't accidentally accepted as
	// Packets; concrete packet types embed nothing and just implement this.
	isPacket()
}

// Marshaler is implemented by Packets that can cross the shared-memory
// transport. MarshalTo writes the packet's wire representation into buf and
// returns the number of bytes written. A negative return indicates the
// packet did not fit in buf; the caller may retry with a fresh buffer
// region (the publisher retries once from the payload area's base).
type Marshaler interface {
	MarshalTo(buf []byte) (int, error)
}

// Unmarshaler is implemented by Packets that can be reconstructed from the
// shared-memory transport. UnmarshalFrom consumes exactly n bytes (the size
// recorded in the ring slot) from buf and returns the number of bytes
// consumed.
type Unmarshaler interface {
	UnmarshalFrom(buf []byte) (int, error)
}

// BasePacket is embedded by concrete packet types to satisfy Packet without
// boilerplate.
type BasePacket struct{}

func (BasePacket) isPacket() {}
