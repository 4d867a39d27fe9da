// Package pool provides assignment strategies over a fixed set of members.
package pool

// Pool hands out members of a fixed set for work assignment.
// Implementations must be safe for concurrent use.
type Pool[T any] interface {
	// Next returns the member that should receive the next unit of work.
	Next() T

	// Len returns the number of members.
	Len() int
}
