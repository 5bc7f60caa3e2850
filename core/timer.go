package core

import (
	"sync"
	"time"
)

const (
	timeNearShift  = 8
	timeNear       = 1 << timeNearShift
	timeLevelShift = 6
	timeLevel      = 1 << timeLevelShift
	timeNearMask   = timeNear - 1
	timeLevelMask  = timeLevel - 1
)

type timerNode struct {
	next    *timerNode
	expire  uint32
	handle  Handle
	session int32
}

type timerList struct {
	head *timerNode
	tail *timerNode
}

func (l *timerList) link(node *timerNode) {
	node.next = nil
	if l.tail == nil {
		l.head = node
	} else {
		l.tail.next = node
	}
	l.tail = node
}

func (l *timerList) clear() *timerNode {
	head := l.head
	l.head = nil
	l.tail = nil
	return head
}

// TimerWheel is a hierarchical timing wheel with a 256 slot near wheel and
// four 64 slot outer levels. One tick is a centisecond. Expired timers are
// delivered as response messages with source 0 and no payload.
type TimerWheel struct {
	mu sync.Mutex

	near [timeNear]timerList
	t    [4][timeLevel]timerList
	time uint32

	startTime    uint32
	current      uint64
	currentPoint uint64

	clock  func() uint64
	push   func(Handle, Message) error
	report func(format string, args ...any)
}

// NewTimerWheel creates a wheel. clock returns monotonic centiseconds and
// may be nil for the system clock. push delivers expired timers. report
// receives clock anomalies and may be nil.
func NewTimerWheel(clock func() uint64, push func(Handle, Message) error, report func(format string, args ...any)) *TimerWheel {
	if clock == nil {
		clock = monotonicCentiseconds()
	}
	if report == nil {
		report = func(string, ...any) {}
	}

	now := time.Now()
	return &TimerWheel{
		startTime:    uint32(now.Unix()),
		current:      uint64(now.Nanosecond() / int(10*time.Millisecond)),
		currentPoint: clock(),
		clock:        clock,
		push:         push,
		report:       report,
	}
}

func monotonicCentiseconds() func() uint64 {
	base := time.Now()
	return func() uint64 {
		return uint64(time.Since(base) / (10 * time.Millisecond))
	}
}

// Timeout schedules a response message with session to handle after delay
// ticks. A delay <= 0 delivers it immediately; that only fails when the
// handle is gone.
func (w *TimerWheel) Timeout(handle Handle, delay int, session int32) error {
	if delay <= 0 {
		return w.push(handle, Message{Session: session, Type: MessageTypeResponse})
	}

	node := &timerNode{handle: handle, session: session}
	w.mu.Lock()
	node.expire = uint32(delay) + w.time
	w.addNode(node)
	w.mu.Unlock()
	return nil
}

func (w *TimerWheel) addNode(node *timerNode) {
	expire := node.expire
	current := w.time

	if expire|timeNearMask == current|timeNearMask {
		w.near[expire&timeNearMask].link(node)
		return
	}

	var i int
	mask := uint32(timeNear << timeLevelShift)
	for i = 0; i < 3; i++ {
		if expire|(mask-1) == current|(mask-1) {
			break
		}
		mask <<= timeLevelShift
	}
	w.t[i][(expire>>(timeNearShift+i*timeLevelShift))&timeLevelMask].link(node)
}

func (w *TimerWheel) moveList(level, idx int) {
	current := w.t[level][idx].clear()
	for current != nil {
		next := current.next
		w.addNode(current)
		current = next
	}
}

func (w *TimerWheel) shift() {
	mask := uint32(timeNear)
	w.time++
	ct := w.time
	if ct == 0 {
		w.moveList(3, 0)
		return
	}

	t := ct >> timeNearShift
	for i := 0; ct&(mask-1) == 0; i++ {
		idx := int(t & timeLevelMask)
		if idx != 0 {
			w.moveList(i, idx)
			return
		}
		mask <<= timeLevelShift
		t >>= timeLevelShift
	}
}

// execute fires the current near slot. Called with mu held; the lock is
// dropped while messages are pushed.
func (w *TimerWheel) execute() {
	idx := w.time & timeNearMask
	for w.near[idx].head != nil {
		current := w.near[idx].clear()
		w.mu.Unlock()
		for ; current != nil; current = current.next {
			_ = w.push(current.handle, Message{Session: current.session, Type: MessageTypeResponse})
		}
		w.mu.Lock()
	}
}

// Tick advances the wheel by one centisecond.
func (w *TimerWheel) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	// timers added with the current time
	w.execute()

	w.shift()
	w.execute()
}

// Update reads the clock and ticks once for every elapsed centisecond.
// It is called by a single goroutine.
func (w *TimerWheel) Update() {
	cp := w.clock()
	switch {
	case cp < w.currentPoint:
		w.report("time diff error: change from %d to %d", cp, w.currentPoint)
		w.currentPoint = cp
	case cp != w.currentPoint:
		diff := uint32(cp - w.currentPoint)
		w.currentPoint = cp
		w.mu.Lock()
		w.current += uint64(diff)
		w.mu.Unlock()
		for i := uint32(0); i < diff; i++ {
			w.Tick()
		}
	}
}

// StartTime returns the wall clock second the node started.
func (w *TimerWheel) StartTime() uint32 {
	return w.startTime
}

// Now returns centiseconds elapsed since StartTime.
func (w *TimerWheel) Now() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.current
}
