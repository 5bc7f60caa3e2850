package core

import "sync/atomic"

// Monitor watches one worker. The worker triggers it around every
// callback; a periodic Check that sees the same version twice while a
// message is in flight flags the destination as stuck.
type Monitor struct {
	version      atomic.Int32
	checkVersion int32
	source       atomic.Uint32
	destination  atomic.Uint32
}

// NewMonitor creates a monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Trigger records the message being processed. (0, 0) marks the worker idle.
func (m *Monitor) Trigger(source, destination Handle) {
	m.source.Store(uint32(source))
	m.destination.Store(uint32(destination))
	m.version.Add(1)
}

// Check compares the version with the one seen by the previous check. It
// reports the in-flight source and destination when the worker has made no
// progress. Only the monitor goroutine calls Check.
func (m *Monitor) Check() (source, destination Handle, version int32, stuck bool) {
	version = m.version.Load()
	if version != m.checkVersion {
		m.checkVersion = version
		return 0, 0, version, false
	}
	destination = Handle(m.destination.Load())
	if destination == 0 {
		return 0, 0, version, false
	}
	return Handle(m.source.Load()), destination, version, true
}

// checkMonitor flags a stuck destination as endless and reports it.
func (n *Node) checkMonitor(m *Monitor) {
	source, destination, version, stuck := m.Check()
	if !stuck {
		return
	}
	n.setEndless(destination)
	n.Error(nil, "A message from [ %s ] to [ %s ] maybe in an endless loop (version = %d)", source, destination, version)
}
