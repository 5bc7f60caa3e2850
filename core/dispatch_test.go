package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendN(t *testing.T, n *Node, dest Handle, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		_, err := n.Send(nil, 0, dest, MessageTypeClient, 0, 0, []byte(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}
}

func TestDispatchWeightBatchAndHandOff(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	a, recA := launchRecorder(t, n)
	b, recB := launchRecorder(t, n)
	dispatchAll(n)
	require.Zero(t, n.GlobalQueue().Len())

	sendN(t, n, a.Handle(), 8)
	sendN(t, n, b.Handle(), 1)
	require.Equal(t, 2, n.GlobalQueue().Len())

	// one pop, then len>>0 = 7 more are counted from the remaining 7
	next := n.DispatchMessage(NewMonitor(), nil, 0)
	assert.Len(t, recA.messages(), 7)
	assert.Equal(t, 1, a.MQLen())
	assert.Empty(t, recB.messages())

	// b was waiting, so a goes back behind it
	assert.Same(t, b.queue, next)
	assert.Equal(t, 1, n.GlobalQueue().Len())
	assert.Same(t, a.queue, n.GlobalQueue().Pop())
}

func TestDispatchWeightShift(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	a, recA := launchRecorder(t, n)
	dispatchAll(n)

	sendN(t, n, a.Handle(), 8)
	next := n.DispatchMessage(NewMonitor(), nil, 1)

	// 7 left after the first pop, 7>>1 = 3 in the batch
	assert.Len(t, recA.messages(), 3)
	assert.Equal(t, 5, a.MQLen())
	assert.Same(t, a.queue, next)
}

func TestDispatchLoneQueueStaysWithWorker(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	a, recA := launchRecorder(t, n)
	dispatchAll(n)

	sendN(t, n, a.Handle(), 3)
	m := NewMonitor()

	q := n.DispatchMessage(m, nil, -1)
	for i := 1; i < 3; i++ {
		require.Same(t, a.queue, q)
		assert.Zero(t, n.GlobalQueue().Len())
		q = n.DispatchMessage(m, q, -1)
	}
	require.Same(t, a.queue, q)
	assert.Len(t, recA.messages(), 3)

	// drained: the queue leaves the worker and there is nothing else
	assert.Nil(t, n.DispatchMessage(m, q, -1))
	assert.Zero(t, n.GlobalQueue().Len())

	got := recA.messages()
	for i, msg := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i), msg.Data)
	}
}

func TestDispatchSelfSendWithSession(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	a, recA := launchRecorder(t, n)
	dispatchAll(n)

	session, err := a.Send(a.Handle(), MessageTypeClient, FlagAllocSession, 0, []byte("hello self"))
	require.NoError(t, err)
	require.Positive(t, session)

	n.DispatchMessage(NewMonitor(), nil, -1)

	got := recA.messages()
	require.Len(t, got, 1)
	assert.Equal(t, received{Type: MessageTypeClient, Session: session, Source: a.Handle(), Data: "hello self"}, got[0])
}
