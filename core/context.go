package core

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Context is the runtime record of one service.
type Context struct {
	node     *Node
	instance Instance
	module   string
	queue    *MessageQueue
	handle   Handle

	cb Callback
	ud any

	logfile atomic.Pointer[os.File]

	// cpu accounting in microseconds, only maintained when profiling
	cpuCost  atomic.Uint64
	cpuStart atomic.Uint64

	session      atomic.Int32
	ref          atomic.Int32
	messageCount atomic.Int64

	init    atomic.Bool
	endless atomic.Bool
	profile bool
}

// Launch creates a service from the module registered as name. The
// service becomes dispatchable only after its Init succeeds; on failure
// its handle is retired and pending messages are bounced to their senders.
func (n *Node) Launch(name, args string) (*Context, error) {
	mod, err := n.modules.Query(name)
	if err != nil {
		return nil, err
	}
	inst := mod.Create()
	if inst == nil {
		return nil, fmt.Errorf("launch %s: %w", name, ErrModuleCreate)
	}

	ctx := &Context{
		node:     n,
		instance: inst,
		module:   name,
		profile:  n.profile,
	}
	// one reference for the caller, one for the handle table
	ctx.ref.Store(2)
	// the queue exists before the handle is published
	queue := NewMessageQueue(0, n.global)
	ctx.queue = queue
	n.handles.Register(ctx)
	n.total.Add(1)

	if err := inst.Init(ctx, args); err != nil {
		n.Error(ctx, "FAILED launch %s", name)
		handle := ctx.handle
		ctx.Release()
		n.handles.Retire(handle)
		queue.Release(n.dropper(handle))
		return nil, fmt.Errorf("launch %s: %w: %w", name, ErrModuleInit, err)
	}

	ret := ctx.Release()
	if ret != nil {
		ctx.init.Store(true)
	}
	n.global.Push(queue)
	if ret == nil {
		return nil, fmt.Errorf("launch %s: %w", name, ErrContextReleased)
	}
	n.Error(ret, "LAUNCH %s %s", name, args)
	return ret, nil
}

// Handle returns the service handle.
func (c *Context) Handle() Handle {
	return c.handle
}

// Node returns the node the service lives in.
func (c *Context) Node() *Node {
	return c.node
}

// Module returns the name of the module backing the service.
func (c *Context) Module() string {
	return c.module
}

// Callback installs the message handler. ud is passed back on each call.
func (c *Context) Callback(ud any, cb Callback) {
	c.ud = ud
	c.cb = cb
}

// NewSession allocates a session id. Sessions are always positive and wrap
// back to 1.
func (c *Context) NewSession() int32 {
	for {
		old := c.session.Load()
		next := old + 1
		if next <= 0 {
			next = 1
		}
		if c.session.CompareAndSwap(old, next) {
			return next
		}
	}
}

// Send sends a message from this service. See Node.Send.
func (c *Context) Send(destination Handle, typ MessageType, flags SendFlags, session int32, data []byte) (int32, error) {
	return c.node.Send(c, 0, destination, typ, flags, session, data)
}

// SendName sends a message to a ":hex" or ".name" address.
func (c *Context) SendName(addr string, typ MessageType, flags SendFlags, session int32, data []byte) (int32, error) {
	return c.node.SendName(c, 0, addr, typ, flags, session, data)
}

// Error reports a diagnostic on behalf of this service.
func (c *Context) Error(format string, args ...any) {
	c.node.Error(c, format, args...)
}

// MQLen returns the number of pending messages.
func (c *Context) MQLen() int {
	return c.queue.Len()
}

func (c *Context) grab() {
	c.ref.Add(1)
}

// Release drops one reference. The call that drops the last reference
// deletes the context synchronously and returns nil.
func (c *Context) Release() *Context {
	if c.ref.Add(-1) == 0 {
		c.delete()
		return nil
	}
	return c
}

func (c *Context) delete() {
	if f := c.logfile.Swap(nil); f != nil {
		_ = f.Close()
	}
	if r, ok := c.instance.(Releaser); ok {
		r.Release()
	}
	c.queue.MarkRelease()
	c.node.total.Add(-1)
}

func (c *Context) dispatch(msg *Message) {
	if f := c.logfile.Load(); f != nil {
		logOutput(f, msg, c.node.timer.Now())
	}
	c.messageCount.Add(1)

	var reserve bool
	if c.profile {
		start := threadTime()
		c.cpuStart.Store(start)
		reserve = c.cb(c, c.ud, msg.Type, msg.Session, msg.Source, msg.Data)
		c.cpuCost.Add(threadTime() - start)
	} else {
		reserve = c.cb(c, c.ud, msg.Type, msg.Session, msg.Source, msg.Data)
	}
	if !reserve {
		msg.free()
	}
}

// DispatchAll delivers every pending message on the calling goroutine.
// It is used to flush a service, such as the logger, before aborting.
func (c *Context) DispatchAll() {
	for {
		msg, ok := c.queue.Pop()
		if !ok {
			return
		}
		if c.cb == nil {
			msg.free()
			continue
		}
		c.dispatch(&msg)
	}
}

// DispatchMessage runs one scheduling step for a worker. With a nil queue
// it takes the next queue from the global queue. It pops one message, or a
// batch of len>>weight messages when weight >= 0, and returns the queue the
// worker should process next; nil means there is no work.
func (n *Node) DispatchMessage(m *Monitor, q *MessageQueue, weight int) *MessageQueue {
	if q == nil {
		q = n.global.Pop()
		if q == nil {
			return nil
		}
	}

	handle := q.Handle()
	ctx := n.handles.Grab(handle)
	if ctx == nil {
		q.Release(n.dropper(handle))
		return n.global.Pop()
	}

	count := 1
	for i := 0; i < count; i++ {
		msg, ok := q.Pop()
		if !ok {
			ctx.Release()
			return n.global.Pop()
		}
		if i == 0 && weight >= 0 {
			count = q.Len() >> weight
		}

		if overload := q.Overload(); overload > 0 {
			n.Error(ctx, "May overload, message queue length = %d", overload)
		}

		m.Trigger(msg.Source, handle)
		if ctx.cb == nil {
			msg.free()
		} else {
			ctx.dispatch(&msg)
		}
		m.Trigger(0, 0)
	}

	// a lone busy queue is kept by this worker instead of taking a trip
	// through the global queue
	if nq := n.global.Pop(); nq != nil {
		n.global.Push(q)
		q = nq
	}
	ctx.Release()
	return q
}

// dropper bounces messages of a dead service back to their senders as
// empty error messages.
func (n *Node) dropper(handle Handle) DropFunc {
	return func(msg *Message) {
		msg.free()
		_, _ = n.Send(nil, handle, msg.Source, MessageTypeError, 0, 0, nil)
	}
}

// Push delivers msg to the queue of handle.
func (n *Node) Push(handle Handle, msg Message) error {
	ctx := n.handles.Grab(handle)
	if ctx == nil {
		return ErrDestinationNotFound
	}
	ctx.queue.Push(msg)
	ctx.Release()
	return nil
}

func (n *Node) setEndless(handle Handle) {
	ctx := n.handles.Grab(handle)
	if ctx == nil {
		return
	}
	ctx.endless.Store(true)
	ctx.Release()
}
