package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipelineTwoStageScenario(t *testing.T) {
	p := New()

	var mu sync.Mutex
	var results []int64
	sink := p.AddFunc("sink", func(pkt Packet, _ Pad) bool {
		mu.Lock()
		results = append(results, pkt.(*intPacket).value)
		mu.Unlock()
		return true
	})
	sinkIn := sink.AddInput("in")

	src := p.AddFunc("src", nil)
	srcOut := src.AddOutput("out")

	require.NoError(t, p.Connect(srcOut, sinkIn))
	require.NoError(t, p.Start())
	require.Equal(t, Running, p.State())

	for i := int64(1); i <= 3; i++ {
		ok, err := srcOut.PushPacket(&intPacket{value: i}, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	p.Stop()
	require.Equal(t, Idle, p.State())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{1, 2, 3}, results)
}

func TestPipelineThreeStageWithSplitter(t *testing.T) {
	p := New()

	src := p.AddFunc("src", nil)
	srcOut := src.AddOutput("out")

	split := p.AddNode(NewSplitter("split", "")).(*Splitter)
	require.NoError(t, p.Connect(srcOut, split.In()))

	var mu sync.Mutex
	var left, right []int64
	sinkLeft := p.AddFunc("left", func(pkt Packet, _ Pad) bool {
		mu.Lock()
		left = append(left, pkt.(*intPacket).value)
		mu.Unlock()
		return true
	})
	sinkRight := p.AddFunc("right", func(pkt Packet, _ Pad) bool {
		mu.Lock()
		right = append(right, pkt.(*intPacket).value)
		mu.Unlock()
		return true
	})

	require.NoError(t, p.Connect(split.AddOutput("left"), sinkLeft.AddInput("in")))
	require.NoError(t, p.Connect(split.AddOutput("right"), sinkRight.AddInput("in")))

	require.NoError(t, p.Start())
	ok, err := srcOut.PushPacket(&intPacket{value: 10}, 0)
	require.NoError(t, err)
	require.True(t, ok)
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{10}, left)
	require.Equal(t, []int64{10}, right)
}

func TestPipelineStartRollsBackOnUserStartFailure(t *testing.T) {
	p := New()

	first := p.AddFunc("first", nil)
	first.AddInput("in")

	failing := &failingStartNode{}
	failing.BaseNode = NewBaseNode("failing", failing)
	p.AddNode(failing)

	err := p.Start()
	require.Error(t, err)
	require.Equal(t, Idle, p.State())
}

type failingStartNode struct {
	*BaseNode
}

func (n *failingStartNode) ProcessPacket(Packet, Pad) bool { return false }
func (n *failingStartNode) Start() error                   { return errBoom }
func (n *failingStartNode) Stop()                          {}

var errBoom = errors.New("boom")

func TestPipelineStateTransitions(t *testing.T) {
	p := New()
	require.Equal(t, Idle, p.State())

	require.NoError(t, p.Start())
	require.Equal(t, Running, p.State())

	p.Stop()
	require.Equal(t, Idle, p.State())
}

func TestQueuePadIntegratedIntoPipeline(t *testing.T) {
	p := New()

	done := make(chan struct{})
	var got int64
	sink := p.AddFunc("sink", func(pkt Packet, _ Pad) bool {
		got = pkt.(*intPacket).value
		close(done)
		return true
	})
	qin := sink.AddQueueInput("in", 4)

	src := p.AddFunc("src", nil)
	out := src.AddOutput("out")
	require.NoError(t, p.Connect(out, qin))

	require.NoError(t, p.Start())
	defer p.Stop()

	ok, err := out.PushPacket(&intPacket{value: 21}, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued packet to be processed")
	}
	require.Equal(t, int64(21), got)
}
