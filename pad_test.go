package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimplePadSynchronousHandoff(t *testing.T) {
	var received Packet
	sink := NewFuncNode("sink", func(p Packet, _ Pad) bool {
		received = p
		return true
	})
	sink.AddInput("in")

	src := NewFuncNode("src", nil)
	out := src.AddOutput("out")

	_, err := out.Then(sink.Pad("in"))
	require.NoError(t, err)

	ok, err := out.PushPacket(&intPacket{value: 1}, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), received.(*intPacket).value)
}

func TestPadThenPromotesDirections(t *testing.T) {
	a := NewFuncNode("a", nil)
	b := NewFuncNode("b", nil)
	pa := NewSimplePad(a, "out", 0)
	pb := NewSimplePad(b, "in", 0)

	require.Equal(t, Undefined, pa.Type())
	require.Equal(t, Undefined, pb.Type())

	_, err := pa.Then(pb)
	require.NoError(t, err)
	require.Equal(t, Output, pa.Type())
	require.Equal(t, Input, pb.Type())
}

func TestPushPacketNoPeerErrors(t *testing.T) {
	n := NewFuncNode("n", nil)
	out := n.AddOutput("out")

	ok, err := out.PushPacket(&intPacket{value: 1}, 0)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrNoPeer)
}

func TestUnlinkDropsPeer(t *testing.T) {
	a := NewFuncNode("a", nil)
	b := NewFuncNode("b", nil)
	pa := a.AddOutput("out")
	pb := b.AddInput("in")

	_, err := pa.Then(pb)
	require.NoError(t, err)

	pa.Unlink()
	_, err = pa.PushPacket(&intPacket{value: 1}, 0)
	require.ErrorIs(t, err, ErrNoPeer)
}

func TestQueuePadFIFOOrder(t *testing.T) {
	var order []int64
	done := make(chan struct{})
	sink := NewFuncNode("sink", func(p Packet, _ Pad) bool {
		order = append(order, p.(*intPacket).value)
		if len(order) == 5 {
			close(done)
		}
		return true
	})
	qp := sink.AddQueueInput("in", 8)
	require.NoError(t, qp.Start())
	defer qp.Stop()

	for i := int64(1); i <= 5; i++ {
		ok, err := qp.PushPacket(&intPacket{value: i}, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queue worker to drain")
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5}, order)
}

func TestQueuePadBackpressureTimesOut(t *testing.T) {
	block := make(chan struct{})
	sink := NewFuncNode("sink", func(Packet, Pad) bool {
		<-block
		return true
	})
	qp := sink.AddQueueInput("in", 1)
	require.NoError(t, qp.Start())
	defer func() {
		close(block)
		qp.Stop()
	}()

	ok, err := qp.PushPacket(&intPacket{value: 1}, time.Second)
	require.NoError(t, err)
	require.True(t, ok) // picked up by the worker, which is now blocked in sink

	ok, err = qp.PushPacket(&intPacket{value: 2}, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok) // fills the one queue slot

	ok, err = qp.PushPacket(&intPacket{value: 3}, 20*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok) // queue full, worker still blocked: times out
}

func TestQueuePadStopDrainsRemainingItems(t *testing.T) {
	var mu sync.Mutex
	var processed []int64
	sink := NewFuncNode("sink", func(p Packet, _ Pad) bool {
		mu.Lock()
		processed = append(processed, p.(*intPacket).value)
		mu.Unlock()
		return true
	})
	qp := sink.AddQueueInput("in", 4)
	require.NoError(t, qp.Start())

	for i := int64(1); i <= 3; i++ {
		ok, err := qp.PushPacket(&intPacket{value: i}, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}

	qp.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, processed, 3)
}
