package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter sends itself n messages and exits after receiving all of them.
type counter struct {
	want     int
	got      atomic.Int32
	released atomic.Int32
}

func (c *counter) Init(ctx *Context, args string) error {
	ctx.Callback(c, func(ctx *Context, ud any, typ MessageType, session int32, source Handle, data []byte) bool {
		if int(c.got.Add(1)) == c.want {
			ctx.Command("EXIT", "")
		}
		return false
	})
	for i := 0; i < c.want; i++ {
		if _, err := ctx.Send(ctx.Handle(), MessageTypeText, 0, 0, []byte("tick")); err != nil {
			return err
		}
	}
	return nil
}

func (c *counter) Release() {
	c.released.Add(1)
}

func runNode(t *testing.T, ctx context.Context, n *Node, threads int) {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, threads) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not stop")
	}
}

func TestRunStopsWhenServicesExit(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{MonitorInterval: 50 * time.Millisecond, TimerInterval: time.Millisecond})

	var counters []*counter
	for i := 0; i < 4; i++ {
		c := &counter{want: 500}
		counters = append(counters, c)
		require.NoError(t, n.Modules().Register(string(rune('a'+i)), ModuleFunc(func() Instance { return c })))
		_, err := n.Launch(string(rune('a'+i)), "")
		require.NoError(t, err)
	}

	runNode(t, context.Background(), n, 8)

	assert.Equal(t, 0, n.Total())
	for _, c := range counters {
		assert.Equal(t, int32(500), c.got.Load())
		assert.Equal(t, int32(1), c.released.Load())
	}
}

func TestRunTimer(t *testing.T) {
	n := NewNode(NodeOptions{TimerInterval: time.Millisecond, MonitorInterval: 50 * time.Millisecond})
	var fired atomic.Bool
	require.NoError(t, n.Modules().Register("sleeper", InitFunc(func(ctx *Context, args string) error {
		ctx.Callback(nil, func(ctx *Context, ud any, typ MessageType, session int32, source Handle, data []byte) bool {
			if typ == MessageTypeResponse {
				fired.Store(true)
				ctx.Command("EXIT", "")
			}
			return false
		})
		ctx.Command("TIMEOUT", "2")
		return nil
	})))
	_, err := n.Launch("sleeper", "")
	require.NoError(t, err)

	runNode(t, context.Background(), n, 2)
	assert.True(t, fired.Load())
}

func TestRunCancel(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{MonitorInterval: 50 * time.Millisecond, TimerInterval: time.Millisecond})
	_, rec := launchRecorder(t, n)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	runNode(t, ctx, n, 2)

	assert.Equal(t, 0, n.Total())
	assert.Equal(t, int32(1), rec.released.Load())
}

func TestRunInvalidThreads(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	assert.Error(t, n.Run(context.Background(), 0))
}

func TestBootstrap(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})

	require.NoError(t, n.Bootstrap("recorder", "", "recorder extra args"))
	assert.Equal(t, 2, n.Total())

	err := n.Bootstrap("recorder", "", "missing args")
	assert.ErrorIs(t, err, ErrBootstrapFailure)
	assert.ErrorIs(t, err, ErrModuleNotFound)

	assert.Error(t, n.Bootstrap("missing", "", ""))
}

func TestWorkerWeight(t *testing.T) {
	assert.Equal(t, -1, workerWeight(0))
	assert.Equal(t, 0, workerWeight(4))
	assert.Equal(t, 1, workerWeight(8))
	assert.Equal(t, 3, workerWeight(31))
	assert.Equal(t, 0, workerWeight(32))
}
