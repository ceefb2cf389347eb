package cloud

import (
	"context"
	"sync"
)

// Future is a result that becomes available later. It is resolved exactly once;
// later calls to Resolve are ignored.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Go runs fn on a new goroutine and returns a future resolved with its result.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		f.Resolve(fn())
	}()
	return f
}

// Resolved returns an already resolved future.
func Resolved[T any](value T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(value, err)
	return f
}

func (f *Future[T]) Resolve(value T, err error) {
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
	})
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the future is resolved or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
