package jqrender

import (
	"sync"
	"time"
)

// outcome is the single value delivered to a waiting caller.
type outcome struct {
	value any
	err   error
}

// pendingRequest tracks one in-flight pooled evaluation. done has capacity 1
// and receives exactly one outcome from whoever removed the request from the
// table.
type pendingRequest struct {
	id      uint64
	worker  int
	timeout time.Duration
	started time.Time
	done    chan outcome
}

// pendingTable correlates request ids with waiting callers. Removing an entry
// is the only way to resolve it, which makes resolution happen at most once.
type pendingTable struct {
	mu      sync.Mutex
	entries map[uint64]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uint64]*pendingRequest)}
}

func (t *pendingTable) add(p *pendingRequest) {
	t.mu.Lock()
	t.entries[p.id] = p
	t.mu.Unlock()
}

// take removes and returns the request with the given id, if still pending.
func (t *pendingTable) take(id uint64) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return p, ok
}

func (t *pendingTable) has(id uint64) bool {
	t.mu.Lock()
	_, ok := t.entries[id]
	t.mu.Unlock()
	return ok
}

// takeOwnedBy removes every request assigned to worker.
func (t *pendingTable) takeOwnedBy(worker int) []*pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*pendingRequest
	for id, p := range t.entries {
		if p.worker == worker {
			out = append(out, p)
			delete(t.entries, id)
		}
	}
	return out
}

func (t *pendingTable) takeAll() []*pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*pendingRequest, 0, len(t.entries))
	for id, p := range t.entries {
		out = append(out, p)
		delete(t.entries, id)
	}
	return out
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
