// Package future provides single-assignment values that are produced by one
// goroutine and consumed by another.
package future

import (
	"context"
	"sync/atomic"
)

// NewFailable returns a future that resolves to either a value of type T or
// an error, and the resolver used to resolve it.
func NewFailable[T any]() (Failable[T], FailableResolver[T]) {
	s := &state[T]{ready: make(chan struct{})}
	return Failable[T]{s}, FailableResolver[T]{s}
}

// Failable is a value of type T that becomes available at some point in the
// future, or an error explaining why it never will.
type Failable[T any] struct {
	s *state[T]
}

// Ready returns a channel that is closed once the future is resolved.
func (f Failable[T]) Ready() <-chan struct{} {
	return f.s.ready
}

// Get returns the resolved value or error. It panics if the future is not
// resolved.
func (f Failable[T]) Get() (T, error) {
	r := f.s.result.Load()
	if r == nil {
		panic("future is not resolved")
	}
	return r.value, r.err
}

// Wait blocks until the future is resolved or ctx is canceled.
func (f Failable[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.s.ready:
		return f.Get()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// FailableResolver resolves a [Failable].
//
// Only the first resolution takes effect. It is safe to resolve from multiple
// goroutines concurrently.
type FailableResolver[T any] struct {
	s *state[T]
}

// TrySet resolves the future with v. It returns false if the future was
// already resolved.
func (r FailableResolver[T]) TrySet(v T) bool {
	return r.s.resolve(&result[T]{value: v})
}

// TryErr resolves the future with err. It returns false if the future was
// already resolved.
func (r FailableResolver[T]) TryErr(err error) bool {
	if err == nil {
		panic("error must not be nil")
	}
	return r.s.resolve(&result[T]{err: err})
}

type state[T any] struct {
	ready  chan struct{}
	result atomic.Pointer[result[T]]
}

type result[T any] struct {
	value T
	err   error
}

func (s *state[T]) resolve(r *result[T]) bool {
	if !s.result.CompareAndSwap(nil, r) {
		return false
	}
	close(s.ready)
	return true
}
