package pipeline

import "encoding/binary"

// intPacket is a minimal Packet used across this package's tests. It also
// implements Marshaler/Unmarshaler so it can exercise the shared-memory
// transport tests without pulling in a real protocol.
type intPacket struct {
	BasePacket
	value int64
}

func (p *intPacket) MarshalTo(buf []byte) (int, error) {
	if len(buf) < 8 {
		return -1, nil
	}
	binary.BigEndian.PutUint64(buf, uint64(p.value))
	return 8, nil
}

func (p *intPacket) UnmarshalFrom(buf []byte) (int, error) {
	if len(buf) < 8 {
		return 0, nil
	}
	p.value = int64(binary.BigEndian.Uint64(buf))
	return 8, nil
}
