// Package workerpool provides the bounded goroutine pool that the
// group-chat member fan-out loop runs on (§5 "short RPC handlers run
// to completion on a pool thread"). REST handlers themselves run on
// net/http's own goroutines, not on this pool.
// Long-lived tasks (session reader/writer, broker consumer,
// reconnect loop) are NOT routed through this pool - they are plain
// goroutines, since they block for a connection's lifetime and would
// starve a bounded pool.
package workerpool

import "github.com/alitto/pond"

// Pool wraps a pond worker pool sized for short, bounded-duration work.
type Pool struct {
	inner *pond.WorkerPool
}

// New creates a pool with maxWorkers running and a backlog of
// maxCapacity queued tasks before Submit blocks.
func New(maxWorkers, maxCapacity int) *Pool {
	return &Pool{inner: pond.New(maxWorkers, maxCapacity, pond.Strategy(pond.Balanced()))}
}

// Submit runs fn on a pool worker, queuing if all workers are busy.
func (p *Pool) Submit(fn func()) {
	p.inner.Submit(fn)
}

// Running reports the number of running worker goroutines, busy or idle.
func (p *Pool) Running() int {
	return p.inner.RunningWorkers()
}

// StopAndWait drains queued tasks and waits for in-flight ones to finish.
func (p *Pool) StopAndWait() {
	p.inner.StopAndWait()
}
