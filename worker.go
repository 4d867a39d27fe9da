package jqrender

import (
	"context"
	"fmt"
)

// job is one evaluation handed to a worker. ctx carries the request deadline.
type job struct {
	ctx context.Context
	id  uint64
	req Request
}

// replySink receives worker outcomes. The Pool implements it.
type replySink interface {
	isPending(id uint64) bool
	complete(j job, worker int, v any, err error)
	fail(worker int, cause error)
}

// worker is a persistent evaluation loop reading its own job queue.
type worker struct {
	id   int
	jobs chan job
	ev   Evaluator
	sink replySink
}

func newWorker(id, queueSize int, ev Evaluator, sink replySink) *worker {
	return &worker{id: id, jobs: make(chan job, queueSize), ev: ev, sink: sink}
}

// run serves jobs until closing is closed. A panic inside the evaluator fails
// every request owned by the worker, after which the loop starts over.
func (w *worker) run(closing <-chan struct{}) {
	for !w.serve(closing) {
	}
}

// serve returns true when the pool is closing and false after a panic.
func (w *worker) serve(closing <-chan struct{}) (stopped bool) {
	defer func() {
		if r := recover(); r != nil {
			w.sink.fail(w.id, fmt.Errorf("%w: %v", ErrWorkerFailed, r))
			stopped = false
		}
	}()

	for {
		select {
		case <-closing:
			return true
		case j := <-w.jobs:
			// Queued jobs are left to the pool once closing starts.
			select {
			case <-closing:
				return true
			default:
			}
			// Resolved by timeout or by an earlier failure of this worker.
			if j.ctx.Err() != nil || !w.sink.isPending(j.id) {
				continue
			}
			v, err := w.ev.Evaluate(j.ctx, j.req.Input, j.req.Filter, j.req.EnableEnv)
			w.sink.complete(j, w.id, v, err)
		}
	}
}
