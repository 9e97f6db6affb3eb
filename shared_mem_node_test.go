package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublisherSubscriberRoundTrip(t *testing.T) {
	segmentName := fmt.Sprintf("test-pubsub-%d", time.Now().UnixNano())

	pub := NewPublisher("pub", segmentName, WithRingCapacity(4))
	sub := NewSubscriber("sub", segmentName, func() Packet { return &intPacket{} },
		WithPollQuantum(20*time.Millisecond),
		WithReattachQuantum(20*time.Millisecond),
	)

	received := make(chan int64, 8)
	consumer := NewFuncNode("consumer", func(p Packet, _ Pad) bool {
		received <- p.(*intPacket).value
		return true
	})
	consumer.AddInput("in")

	p := New()
	p.AddNode(pub)
	p.AddNode(sub)
	p.AddNode(consumer)
	require.NoError(t, p.Connect(sub.Out(), consumer.Pad("in")))

	require.NoError(t, p.Start())
	defer p.Stop()

	for i := int64(1); i <= 3; i++ {
		ok, err := pub.In().PushPacket(&intPacket{value: i}, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}

	var got []int64
	for i := 0; i < 3; i++ {
		select {
		case v := <-received:
			got = append(got, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for packet %d", i+1)
		}
	}
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestPublisherRejectsNonMarshalablePacket(t *testing.T) {
	segmentName := fmt.Sprintf("test-pub-reject-%d", time.Now().UnixNano())
	pub := NewPublisher("pub", segmentName)
	require.NoError(t, pub.start())
	require.NoError(t, pub.Start())
	defer func() {
		pub.Stop()
		pub.stop()
	}()

	ok := pub.ProcessPacket(&stringPacket{value: "no marshaler"}, pub.In())
	require.False(t, ok)
}

func TestSubscriberReceivesThenStopsAfterPublisherStop(t *testing.T) {
	segmentName := fmt.Sprintf("test-sub-detach-%d", time.Now().UnixNano())

	pub := NewPublisher("pub", segmentName, WithRingCapacity(2))
	require.NoError(t, pub.start())
	require.NoError(t, pub.Start())

	received := make(chan int64, 4)
	consumer := NewFuncNode("consumer", func(p Packet, _ Pad) bool {
		received <- p.(*intPacket).value
		return true
	})
	consumer.AddInput("in")
	sub := NewSubscriber("sub", segmentName, func() Packet { return &intPacket{} },
		WithPollQuantum(10*time.Millisecond),
	)
	require.NoError(t, sub.start())
	require.NoError(t, sub.Start())
	_, err := sub.Out().Then(consumer.Pad("in"))
	require.NoError(t, err)

	ok, err := pub.In().PushPacket(&intPacket{value: 1}, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case v := <-received:
		require.Equal(t, int64(1), v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first packet")
	}

	pub.Stop()
	pub.stop()

	sub.Stop()
	sub.stop()
}
