package core

import (
	"sync"

	"github.com/gammazero/deque"
)

const (
	defaultQueueSize = 64
	overloadDefault  = 1024
)

// MessageQueue is the per-service circular message buffer. It grows by
// doubling and never rejects a push.
type MessageQueue struct {
	mu sync.Mutex

	handle Handle
	cap    int
	head   int
	tail   int

	// release is set once the owning context is gone
	release bool

	// inGlobal is true while the queue is linked into the global queue or
	// held by a worker
	inGlobal bool

	overload          int
	overloadThreshold int

	queue  []Message
	global *GlobalQueue
}

// NewMessageQueue creates the queue for handle. The queue starts marked as
// in-global so that it is not scheduled before its service finishes init.
func NewMessageQueue(handle Handle, global *GlobalQueue) *MessageQueue {
	return &MessageQueue{
		handle:            handle,
		cap:               defaultQueueSize,
		inGlobal:          true,
		overloadThreshold: overloadDefault,
		queue:             make([]Message, defaultQueueSize),
		global:            global,
	}
}

// Handle returns the handle of the owning service.
func (q *MessageQueue) Handle() Handle {
	return q.handle
}

// Len returns the number of pending messages.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	head, tail, cap := q.head, q.tail, q.cap
	q.mu.Unlock()

	if head <= tail {
		return tail - head
	}
	return tail + cap - head
}

// Overload returns the last recorded overload length and clears it.
// Only the worker dispatching the queue calls it.
func (q *MessageQueue) Overload() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	overload := q.overload
	q.overload = 0
	return overload
}

// Pop removes the oldest message. It reports false when the queue is
// empty, in which case the queue leaves the global queue and will be
// rescheduled by the next Push.
func (q *MessageQueue) Pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == q.tail {
		q.overloadThreshold = overloadDefault
		q.inGlobal = false
		return Message{}, false
	}

	msg := q.queue[q.head]
	q.queue[q.head] = Message{}
	q.head++
	if q.head >= q.cap {
		q.head = 0
	}

	length := q.tail - q.head
	if length < 0 {
		length += q.cap
	}
	for length > q.overloadThreshold {
		q.overload = length
		q.overloadThreshold *= 2
	}

	return msg, true
}

// Push appends msg and schedules the queue if it was idle.
func (q *MessageQueue) Push(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queue[q.tail] = msg
	q.tail++
	if q.tail >= q.cap {
		q.tail = 0
	}
	if q.head == q.tail {
		q.expand()
	}

	if !q.inGlobal {
		q.inGlobal = true
		q.global.Push(q)
	}
}

func (q *MessageQueue) expand() {
	queue := make([]Message, q.cap*2)
	for i := 0; i < q.cap; i++ {
		queue[i] = q.queue[(q.head+i)%q.cap]
	}
	q.head = 0
	q.tail = q.cap
	q.cap *= 2
	q.queue = queue
}

// MarkRelease flags the queue for release once its service is deleted.
// The queue is forced through the global queue so that a worker drains it.
func (q *MessageQueue) MarkRelease() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.release {
		panic("core: message queue released twice")
	}
	q.release = true
	if !q.inGlobal {
		q.inGlobal = true
		q.global.Push(q)
	}
}

// DropFunc receives every message still pending when a queue is released.
type DropFunc func(msg *Message)

// Release drains and frees a queue marked for release, handing each pending
// message to drop. A queue whose service still exists goes back to the
// global queue instead.
func (q *MessageQueue) Release(drop DropFunc) {
	q.mu.Lock()
	if !q.release {
		q.global.Push(q)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	q.drain(drop)
}

func (q *MessageQueue) drain(drop DropFunc) {
	for {
		msg, ok := q.Pop()
		if !ok {
			break
		}
		drop(&msg)
	}

	q.mu.Lock()
	q.queue = nil
	q.cap = 0
	q.mu.Unlock()
}

// GlobalQueue is the FIFO of message queues that have work pending.
type GlobalQueue struct {
	mu     sync.Mutex
	queues deque.Deque[*MessageQueue]

	// notify is called after a push, outside the lock
	notify func()
}

// NewGlobalQueue creates an empty global queue.
func NewGlobalQueue() *GlobalQueue {
	return &GlobalQueue{}
}

// Push appends q.
func (g *GlobalQueue) Push(q *MessageQueue) {
	g.mu.Lock()
	g.queues.PushBack(q)
	notify := g.notify
	g.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Pop removes the oldest queue, or returns nil when there is none.
func (g *GlobalQueue) Pop() *MessageQueue {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.queues.Len() == 0 {
		return nil
	}
	return g.queues.PopFront()
}

// Len returns the number of scheduled queues.
func (g *GlobalQueue) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.queues.Len()
}

// setNotify installs the wakeup hook of the scheduler.
func (g *GlobalQueue) setNotify(fn func()) {
	g.mu.Lock()
	g.notify = fn
	g.mu.Unlock()
}
