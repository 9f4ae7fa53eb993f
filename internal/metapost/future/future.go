// Package future wraps blocking provider calls so callers can compose them
// with timeouts and await them sequentially.
package future

import (
	"context"
	"fmt"
	"time"
)

// Future is the pending result of a call started with Go.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn in its own goroutine. A panic inside fn is reported as an error.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("panic: %v", r)
			}
		}()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Done is closed once the call has returned.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the call returns or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WithTimeout runs fn and returns onTimeout if it has not answered within d.
// The context passed to fn is cancelled when the timeout fires.
func WithTimeout[T any](ctx context.Context, d time.Duration, onTimeout error, fn func(context.Context) (T, error)) (T, error) {
	return WithTimeoutRelease(ctx, d, onTimeout, fn, nil)
}

// WithTimeoutRelease is WithTimeout with a release hook. When the caller gave
// up before fn returned, a value fn still produces successfully is handed to
// release instead of being dropped.
func WithTimeoutRelease[T any](ctx context.Context, d time.Duration, onTimeout error, fn func(context.Context) (T, error), release func(T)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	f := Go(callCtx, fn)
	val, err := f.Await(callCtx)
	if err != nil && !f.finished() {
		if release != nil {
			go func() {
				<-f.done
				if f.err == nil {
					release(f.val)
				}
			}()
		}
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			var zero T
			return zero, onTimeout
		}
	}
	return val, err
}

func (f *Future[T]) finished() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
