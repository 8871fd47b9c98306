// Package threads provides the small concurrency utilities shared by
// the agents: a bounded executor, a long-hold-warning mutex, and a
// sharded map indexed by dense IDs.
package threads

import (
	"golang.org/x/sync/errgroup"
)

// Executor runs task groups over a bounded number of workers. There is
// no task priority and no cancellation: a group simply waits for all of
// its tasks and reports the first error.
type Executor struct {
	numWorkers int
}

func NewExecutor(numWorkers int) *Executor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Executor{numWorkers: numWorkers}
}

// NewTaskGroup returns an empty group bounded by the executor's worker
// count.
func (e *Executor) NewTaskGroup() *TaskGroup {
	g := &TaskGroup{}
	g.eg.SetLimit(e.numWorkers)
	return g
}

// TaskGroup collects tasks and their combined status.
type TaskGroup struct {
	eg errgroup.Group
}

// AddTask enqueues fn; it blocks while all workers are busy.
func (g *TaskGroup) AddTask(fn func() error) {
	g.eg.Go(fn)
}

// AddTaskNoStatus enqueues a task with no error to report.
func (g *TaskGroup) AddTaskNoStatus(fn func()) {
	g.eg.Go(func() error {
		fn()
		return nil
	})
}

// WaitAll blocks until every task has finished and returns the first
// error any of them produced.
func (g *TaskGroup) WaitAll() error {
	return g.eg.Wait()
}
