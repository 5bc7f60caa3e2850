package core

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// workerWeights sets the batch size of the first workers: -1 pops one
// message per turn, w >= 0 pops len>>w. Workers past the table use 0.
var workerWeights = [...]int{
	-1, -1, -1, -1, 0, 0, 0, 0,
	1, 1, 1, 1, 1, 1, 1, 1,
	2, 2, 2, 2, 2, 2, 2, 2,
	3, 3, 3, 3, 3, 3, 3, 3,
}

func workerWeight(id int) int {
	if id < len(workerWeights) {
		return workerWeights[id]
	}
	return 0
}

// Bootstrap launches the log service and then the service described by
// cmdline ("module args"). If the bootstrap service fails, pending log
// output is flushed before the error is returned.
func (n *Node) Bootstrap(logService, logArgs, cmdline string) error {
	logger, err := n.Launch(logService, logArgs)
	if err != nil {
		return fmt.Errorf("can't launch %s service: %w", logService, err)
	}

	name, args, _ := strings.Cut(strings.TrimSpace(cmdline), " ")
	if name == "" {
		return nil
	}
	if _, err := n.Launch(name, strings.TrimSpace(args)); err != nil {
		n.Error(nil, "Bootstrap error : %s", cmdline)
		logger.DispatchAll()
		return fmt.Errorf("%w: %s: %w", ErrBootstrapFailure, cmdline, err)
	}
	return nil
}

type scheduler struct {
	node     *Node
	count    int
	monitors []*Monitor

	mu    sync.Mutex
	cond  *sync.Cond
	sleep atomic.Int32
	quit  atomic.Bool
}

func newScheduler(n *Node, threads int) *scheduler {
	s := &scheduler{
		node:     n,
		count:    threads,
		monitors: make([]*Monitor, threads),
	}
	s.cond = sync.NewCond(&s.mu)
	for i := range s.monitors {
		s.monitors[i] = NewMonitor()
	}
	return s
}

// wakeup signals one sleeping worker if at least count-busy are asleep.
func (s *scheduler) wakeup(busy int) {
	if int(s.sleep.Load()) >= s.count-busy {
		s.cond.Signal()
	}
}

func (s *scheduler) worker(id int) {
	// pinned so that thread CPU time measures this worker only
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	weight := workerWeight(id)
	m := s.monitors[id]
	var q *MessageQueue
	for !s.quit.Load() {
		q = s.node.DispatchMessage(m, q, weight)
		if q == nil {
			s.mu.Lock()
			s.sleep.Add(1)
			if !s.quit.Load() {
				s.cond.Wait()
			}
			s.sleep.Add(-1)
			s.mu.Unlock()
		}
	}
}

func (s *scheduler) timer() {
	for {
		s.node.timer.Update()
		if s.node.Total() == 0 {
			break
		}
		s.wakeup(s.count - 1)
		time.Sleep(s.node.timerInterval)
	}

	s.mu.Lock()
	s.quit.Store(true)
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *scheduler) monitor() {
	step := time.Second
	if s.node.monitorInterval < step {
		step = s.node.monitorInterval
	}
	steps := int(s.node.monitorInterval / step)

	for {
		if s.node.Total() == 0 {
			return
		}
		for _, m := range s.monitors {
			s.node.checkMonitor(m)
		}
		for i := 0; i < steps; i++ {
			if s.node.Total() == 0 {
				return
			}
			time.Sleep(step)
		}
	}
}

// Run starts the worker pool, the timer goroutine and the monitor
// goroutine, and blocks until no service is left. Cancelling ctx retires
// every service.
func (n *Node) Run(ctx context.Context, threads int) error {
	if threads <= 0 {
		return fmt.Errorf("invalid thread count %d", threads)
	}

	s := newScheduler(n, threads)
	n.global.setNotify(func() { s.wakeup(s.count - 1) })
	defer n.global.setNotify(nil)

	n.log.Info("node started", zap.Int("threads", threads), zap.Int("services", n.Total()))

	var g errgroup.Group
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		s.timer()
		return nil
	})
	g.Go(func() error {
		s.monitor()
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			n.log.Info("node stopping, retiring all services")
			n.handles.RetireAll()
		case <-done:
		}
		return nil
	})
	for i := 0; i < threads; i++ {
		i := i
		g.Go(func() error {
			s.worker(i)
			return nil
		})
	}

	err := g.Wait()
	n.log.Info("node stopped")
	return err
}
