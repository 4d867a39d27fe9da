package jqrender

import (
	"sync"
)

// lifecycleCoordinator runs the Pool shutdown sequence. It does not own the
// pool state; it orders the steps that stop workers and release waiters.
//
// Close() is safe for concurrent calls; the sequence executes exactly once.
type lifecycleCoordinator struct {
	markClosed  func()
	closing     chan struct{}
	workersWG   *sync.WaitGroup
	failPending func() int
	closed      func(abandoned int)

	once sync.Once
}

func newLifecycleCoordinator(
	markClosed func(),
	closing chan struct{},
	workersWG *sync.WaitGroup,
	failPending func() int,
	closed func(abandoned int),
) *lifecycleCoordinator {
	return &lifecycleCoordinator{
		markClosed:  markClosed,
		closing:     closing,
		workersWG:   workersWG,
		failPending: failPending,
		closed:      closed,
	}
}

// Close executes the shutdown sequence exactly once:
// 1) reject new requests
// 2) close the closing channel so idle workers return
// 3) wait for workers to finish the evaluation they are running
// 4) fail requests still pending with ErrPoolClosed
// 5) report the number of abandoned requests
func (lc *lifecycleCoordinator) Close() {
	lc.once.Do(func() {
		if lc.markClosed != nil {
			lc.markClosed()
		}
		if lc.closing != nil {
			close(lc.closing)
		}
		if lc.workersWG != nil {
			lc.workersWG.Wait()
		}
		abandoned := 0
		if lc.failPending != nil {
			abandoned = lc.failPending()
		}
		if lc.closed != nil {
			lc.closed(abandoned)
		}
	})
}
