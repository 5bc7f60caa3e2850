package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	cs atomic.Uint64
}

func (c *fakeClock) now() uint64 {
	return c.cs.Load()
}

type received struct {
	Type    MessageType
	Session int32
	Source  Handle
	Data    string
}

// recorder is a service instance that keeps every message it receives.
type recorder struct {
	mu       sync.Mutex
	msgs     []received
	signals  []int
	released atomic.Int32
}

func (r *recorder) Init(ctx *Context, args string) error {
	ctx.Callback(r, func(ctx *Context, ud any, typ MessageType, session int32, source Handle, data []byte) bool {
		rec := ud.(*recorder)
		rec.mu.Lock()
		rec.msgs = append(rec.msgs, received{Type: typ, Session: session, Source: source, Data: string(data)})
		rec.mu.Unlock()
		return false
	})
	return nil
}

func (r *recorder) Release() {
	r.released.Add(1)
}

func (r *recorder) Signal(sig int) {
	r.mu.Lock()
	r.signals = append(r.signals, sig)
	r.mu.Unlock()
}

func (r *recorder) messages() []received {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]received(nil), r.msgs...)
}

type recorderModule struct {
	last *recorder
}

func (m *recorderModule) Create() Instance {
	m.last = &recorder{}
	return m.last
}

func newTestNode(t *testing.T, opts NodeOptions) (*Node, *fakeClock) {
	t.Helper()

	clock := &fakeClock{}
	if opts.Clock == nil {
		opts.Clock = clock.now
	}
	opts.Logger = zaptest.NewLogger(t)
	n := NewNode(opts)
	require.NoError(t, n.Modules().Register("recorder", &recorderModule{}))
	return n, clock
}

func launchRecorder(t *testing.T, n *Node) (*Context, *recorder) {
	t.Helper()

	mod, err := n.Modules().Query("recorder")
	require.NoError(t, err)
	ctx, err := n.Launch("recorder", "")
	require.NoError(t, err)
	return ctx, mod.(*recorderModule).last
}

// dispatchAll runs a single worker until the global queue is empty.
func dispatchAll(n *Node) {
	m := NewMonitor()
	var q *MessageQueue
	for {
		q = n.DispatchMessage(m, q, -1)
		if q == nil && n.GlobalQueue().Len() == 0 {
			return
		}
	}
}
