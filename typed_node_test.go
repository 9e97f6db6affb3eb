package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stringPacket struct {
	BasePacket
	value string
}

func TestTypedNodeDispatchesOnlyMatchingType(t *testing.T) {
	var got int64
	n := NewTypedNode[*intPacket]("typed", func(p *intPacket, _ Pad) bool {
		got = p.value
		return true
	})
	in := n.AddInput("in")

	ok := n.processPacket(&intPacket{value: 7}, in)
	require.True(t, ok)
	require.Equal(t, int64(7), got)

	ok = n.processPacket(&stringPacket{value: "nope"}, in)
	require.False(t, ok)
}

func TestTypedNode2DispatchesByPadIndex(t *testing.T) {
	var gotInt int64
	var gotString string
	n := NewTypedNode2[*intPacket, *stringPacket]("typed2",
		func(p *intPacket, _ Pad) bool { gotInt = p.value; return true },
		func(p *stringPacket, _ Pad) bool { gotString = p.value; return true },
	)
	first := n.AddInput("first")
	second := n.AddInput("second")

	require.True(t, n.processPacket(&intPacket{value: 5}, first))
	require.True(t, n.processPacket(&stringPacket{value: "hi"}, second))
	require.Equal(t, int64(5), gotInt)
	require.Equal(t, "hi", gotString)

	require.False(t, n.processPacket(&stringPacket{value: "wrong type"}, first))
}
