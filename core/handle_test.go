package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRegisterGrow(t *testing.T) {
	table := NewHandleTable(3)

	seen := make(map[Handle]*Context)
	for i := 0; i < 100; i++ {
		ctx := &Context{}
		ctx.ref.Store(1)
		h := table.Register(ctx)
		require.NotZero(t, h&HandleMask)
		assert.Equal(t, uint8(3), h.Harbor())
		assert.Equal(t, h, ctx.handle)
		require.NotContains(t, seen, h)
		seen[h] = ctx
	}

	for h, ctx := range seen {
		got := table.Grab(h)
		assert.Same(t, ctx, got)
	}
	assert.Len(t, table.Handles(), 100)
	assert.Nil(t, table.Grab(Handle(3<<HandleRemoteShift|1000)))
}

func TestHandleNames(t *testing.T) {
	table := NewHandleTable(0)
	ctx := &Context{}
	ctx.ref.Store(2)
	h := table.Register(ctx)

	for _, name := range []string{"b", "a", "c"} {
		got, ok := table.BindName(h, name)
		require.True(t, ok)
		assert.Equal(t, name, got)
	}
	_, ok := table.BindName(h, "a")
	assert.False(t, ok)

	assert.Equal(t, h, table.FindName("a"))
	assert.Equal(t, h, table.FindName("c"))
	assert.Zero(t, table.FindName("d"))
	assert.Equal(t, []string{"a", "b", "c"}, table.Names(h))

	require.True(t, table.Retire(h))
	assert.Zero(t, table.FindName("a"))
	assert.Nil(t, table.Grab(h))
	assert.False(t, table.Retire(h))
}

func TestHandleRetireReleasesOnce(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	ctx, rec := launchRecorder(t, n)
	h := ctx.Handle()
	require.Equal(t, 1, n.Total())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if c := n.Handles().Grab(h); c != nil {
					c.Release()
				}
			}
		}()
	}
	n.Handles().Retire(h)
	wg.Wait()

	assert.Equal(t, int32(1), rec.released.Load())
	assert.Equal(t, 0, n.Total())
	assert.Nil(t, n.Handles().Grab(h))
}

func TestHandleGrabDuringLaunch(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})

	var stop atomic.Bool
	var last atomic.Uint32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				// the handle being launched is the one after the last retired
				base := Handle(last.Load())
				for h := base; h <= base+3; h++ {
					c := n.Handles().Grab(h)
					if c == nil {
						continue
					}
					assert.Equal(t, h, c.queue.Handle())
					_ = c.MQLen()
					c.Release()
					n.Stat(h)
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		ctx, err := n.Launch("recorder", "")
		require.NoError(t, err)
		n.Handles().Retire(ctx.Handle())
		last.Store(uint32(ctx.Handle()))
	}
	stop.Store(true)
	wg.Wait()
	assert.Zero(t, n.Total())
}

func TestHandleRegisterSetsQueueHandle(t *testing.T) {
	table := NewHandleTable(1)
	ctx := &Context{queue: NewMessageQueue(0, NewGlobalQueue())}
	ctx.ref.Store(1)

	h := table.Register(ctx)
	assert.Equal(t, h, ctx.queue.Handle())
}

func TestHandleRetireAll(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	for i := 0; i < 10; i++ {
		launchRecorder(t, n)
	}
	require.Equal(t, 10, n.Total())

	n.Abort()
	assert.Equal(t, 0, n.Total())
	assert.Empty(t, n.Handles().Handles())
}

func TestParseHandle(t *testing.T) {
	h, err := ParseHandle(":0000001a")
	require.NoError(t, err)
	assert.Equal(t, Handle(0x1a), h)
	assert.Equal(t, ":0000001a", h.String())

	_, err = ParseHandle("1a")
	assert.Error(t, err)
	_, err = ParseHandle(":zz")
	assert.Error(t, err)
}
