// Package asynctask provides the minimal future type the async duals
// (AFoo methods) build on (spec §5, §9: "collapse paired sync/async duals
// ... never expose both shapes unless a caller demands it" — we keep both
// because spec §5 requires identical observable behavior from either
// entry point, but share one scheduling primitive between them).
//
// Grounded on the teacher's goroutine + buffered-channel + select
// pattern in pkg/mcp/mcp.go's SSE shutdown handling.
package asynctask

import "context"

// Task is a future resolving to a T or an error, started immediately on a
// goroutine.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Run starts fn on a new goroutine and returns a Task that resolves to its
// result.
func Run[T any](fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.val, t.err = fn()
	}()
	return t
}

// Get blocks until the task resolves or ctx is done, whichever comes
// first.
func (t *Task[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
