// Package pending provides a single-completion result bounded by a timeout.
package pending

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aretw0/settle/pkg/clock"
)

// ErrTimeout is the default failure of a result whose timeout elapsed first.
var ErrTimeout = errors.New("pending result timed out")

// Result is completed exactly once, either by Complete or by its timeout.
// It is safe for concurrent use.
type Result[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	value     T
	err       error
	timer     clock.Timer
	callbacks []func(T, error)
}

// TimeoutFunc runs when the timeout elapses. It returns the failure to settle
// with, or expire false when the owner has already claimed the result and will
// complete it itself.
type TimeoutFunc func() (expire bool, err error)

// New returns a result that fails after timeout with the error built by
// onTimeout (ErrTimeout when nil). A non-positive timeout never expires.
func New[T any](clk clock.Clock, timeout time.Duration, onTimeout TimeoutFunc) *Result[T] {
	r := &Result[T]{done: make(chan struct{})}
	if timeout <= 0 {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timer = clk.AfterFunc(timeout, func() {
		err := ErrTimeout
		if onTimeout != nil {
			expire, timeoutErr := onTimeout()
			if !expire {
				return
			}
			err = timeoutErr
		}
		var zero T
		r.Complete(zero, err)
	})
	return r
}

// Complete settles the result. It reports false if the result was already settled,
// in which case value and err are discarded.
func (r *Result[T]) Complete(value T, err error) bool {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return false
	}
	r.completed = true
	r.value = value
	r.err = err
	close(r.done)
	if r.timer != nil {
		r.timer.Stop()
	}
	callbacks := r.callbacks
	r.callbacks = nil
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(value, err)
	}
	return true
}

// Succeed is Complete(value, nil).
func (r *Result[T]) Succeed(value T) bool {
	return r.Complete(value, nil)
}

// Fail is Complete(zero, err).
func (r *Result[T]) Fail(err error) bool {
	var zero T
	return r.Complete(zero, err)
}

// OnComplete registers fn to run once the result settles. If it already has,
// fn runs immediately on the calling goroutine.
func (r *Result[T]) OnComplete(fn func(T, error)) {
	r.mu.Lock()
	if !r.completed {
		r.callbacks = append(r.callbacks, fn)
		r.mu.Unlock()
		return
	}
	value, err := r.value, r.err
	r.mu.Unlock()
	fn(value, err)
}

// Done is closed once the result settles.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the result settles or ctx is done.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.Peek()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the settled value and error without blocking. Before settlement
// it returns the zero value and a nil error; use Settled to tell the cases apart.
func (r *Result[T]) Peek() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.err
}

// Settled reports whether the result has been completed.
func (r *Result[T]) Settled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}
