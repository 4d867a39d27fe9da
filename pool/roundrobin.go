package pool

import "sync/atomic"

type roundRobin[T any] struct {
	members []T
	cursor  atomic.Uint64
}

// NewRoundRobin returns a Pool cycling through members in order, wrapping
// after the last one. It panics if members is empty.
func NewRoundRobin[T any](members []T) Pool[T] {
	if len(members) == 0 {
		panic("pool: round robin requires at least one member")
	}
	m := make([]T, len(members))
	copy(m, members)
	return &roundRobin[T]{members: m}
}

func (p *roundRobin[T]) Next() T {
	n := p.cursor.Add(1) - 1
	return p.members[n%uint64(len(p.members))]
}

func (p *roundRobin[T]) Len() int { return len(p.members) }
