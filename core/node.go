package core

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// NodeOptions configures a Node.
type NodeOptions struct {
	// Harbor is stored in the high 8 bits of every handle
	Harbor uint8

	// Profile enables per-service CPU accounting
	Profile bool

	// Logger receives framework diagnostics when no logger service exists
	Logger *zap.Logger

	// ModuleLoader resolves modules that were not registered up front
	ModuleLoader ModuleLoader

	// MonitorInterval is the period of the endless-loop check
	MonitorInterval time.Duration

	// TimerInterval is how long the timer goroutine sleeps between updates
	TimerInterval time.Duration

	// Clock returns monotonic time in centiseconds. Nil uses the system clock.
	Clock func() uint64
}

// DefaultNodeOptions returns the default node options.
func DefaultNodeOptions() NodeOptions {
	return NodeOptions{
		Harbor:          0,
		MonitorInterval: 5 * time.Second,
		TimerInterval:   2500 * time.Microsecond,
	}
}

// Node owns every runtime structure of one process: the handle table, the
// global queue, the timer wheel, the module registry and the env store.
type Node struct {
	handles *HandleTable
	global  *GlobalQueue
	timer   *TimerWheel
	modules *ModuleRegistry
	env     *Env
	log     *zap.Logger

	// total counts live contexts; the scheduler stops when it reaches 0
	total atomic.Int32

	monitorExit  atomic.Uint32
	loggerHandle atomic.Uint32

	profile         bool
	monitorInterval time.Duration
	timerInterval   time.Duration
}

// NewNode creates a node.
func NewNode(opts NodeOptions) *Node {
	def := DefaultNodeOptions()
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = def.MonitorInterval
	}
	if opts.TimerInterval <= 0 {
		opts.TimerInterval = def.TimerInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	n := &Node{
		handles:         NewHandleTable(opts.Harbor),
		global:          NewGlobalQueue(),
		modules:         NewModuleRegistry(opts.ModuleLoader),
		env:             NewEnv(),
		log:             opts.Logger,
		profile:         opts.Profile,
		monitorInterval: opts.MonitorInterval,
		timerInterval:   opts.TimerInterval,
	}
	n.timer = NewTimerWheel(opts.Clock, n.Push, func(format string, args ...any) {
		n.Error(nil, format, args...)
	})
	return n
}

// Handles returns the handle table.
func (n *Node) Handles() *HandleTable { return n.handles }

// GlobalQueue returns the global queue.
func (n *Node) GlobalQueue() *GlobalQueue { return n.global }

// Timer returns the timer wheel.
func (n *Node) Timer() *TimerWheel { return n.timer }

// Modules returns the module registry.
func (n *Node) Modules() *ModuleRegistry { return n.modules }

// Env returns the env store.
func (n *Node) Env() *Env { return n.env }

// Logger returns the framework logger.
func (n *Node) Logger() *zap.Logger { return n.log }

// Total returns the number of live services.
func (n *Node) Total() int { return int(n.total.Load()) }

// Abort retires every service.
func (n *Node) Abort() {
	n.handles.RetireAll()
}

// ServiceStat is a snapshot of one service.
type ServiceStat struct {
	Handle   Handle   `json:"handle"`
	Module   string   `json:"module"`
	Names    []string `json:"names,omitempty"`
	MQLen    int      `json:"mqlen"`
	Messages int64    `json:"message"`
	CPU      uint64   `json:"cpu"`
	Endless  bool     `json:"endless"`
}

// Stat returns a snapshot of the service owning handle. Unlike the ENDLESS
// command it does not clear the endless flag.
func (n *Node) Stat(handle Handle) (ServiceStat, bool) {
	ctx := n.handles.Grab(handle)
	if ctx == nil {
		return ServiceStat{}, false
	}
	defer ctx.Release()

	return ServiceStat{
		Handle:   handle,
		Module:   ctx.module,
		Names:    n.handles.Names(handle),
		MQLen:    ctx.queue.Len(),
		Messages: ctx.messageCount.Load(),
		CPU:      ctx.cpuCost.Load(),
		Endless:  ctx.endless.Load(),
	}, true
}
