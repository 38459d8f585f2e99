// Package flight provides a single-resolution broadcast: one producer
// resolves a Call exactly once, and every holder observes the same result.
package flight

import (
	"context"
	"sync"
	"sync/atomic"
)

// Call is a shared handle to one in-progress computation.
// The zero value is not usable; create calls with New.
type Call[T any] struct {
	done    chan struct{}
	once    sync.Once
	holders atomic.Int64
	val     T
	err     error
}

// New returns an unresolved Call.
func New[T any]() *Call[T] {
	return &Call[T]{done: make(chan struct{})}
}

// Resolve publishes the outcome. Only the first call has an effect;
// it reports whether this call was the one that resolved.
func (c *Call[T]) Resolve(v T, err error) bool {
	resolved := false
	c.once.Do(func() {
		c.val, c.err = v, err
		resolved = true
		close(c.done)
	})
	return resolved
}

// Done is closed once the call has been resolved.
func (c *Call[T]) Done() <-chan struct{} {
	return c.done
}

// Peek returns the outcome without blocking. ok is false while unresolved.
func (c *Call[T]) Peek() (v T, err error, ok bool) {
	select {
	case <-c.done:
		return c.val, c.err, true
	default:
		return v, nil, false
	}
}

// Wait blocks until the call resolves or ctx is done.
func (c *Call[T]) Wait(ctx context.Context) (T, error) {
	c.holders.Add(1)
	defer c.holders.Add(-1)
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Holders reports how many callers are currently blocked in Wait.
func (c *Call[T]) Holders() int64 {
	return c.holders.Load()
}
