package memory

import (
	"context"
	"sync"

	"github.com/aretw0/settle/pkg/clock"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
)

// Signal implements ports.Signal in memory.
// Safe for concurrent use. Updates are delivered serially, in Set order, on the
// goroutine calling Set. Subscribers must not call Set on the same signal.
type Signal[T any] struct {
	name  string
	clock clock.Clock

	deliver sync.Mutex // serializes Set

	mu    sync.Mutex
	value T
	has   bool
	next  ports.Handle
	subs  []subscription[T]
}

type subscription[T any] struct {
	handle ports.Handle
	fn     func(ports.Update[T])
}

// SignalOption configures a Signal.
type SignalOption func(*signalOptions)

type signalOptions struct {
	clock clock.Clock
}

// WithClock sets the clock used to timestamp updates.
func WithClock(c clock.Clock) SignalOption {
	return func(o *signalOptions) {
		o.clock = c
	}
}

// NewSignal creates a signal without a value.
func NewSignal[T any](name string, opts ...SignalOption) *Signal[T] {
	o := signalOptions{clock: clock.System{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Signal[T]{name: name, clock: o.clock}
}

// NewSignalWith creates a signal holding initial.
func NewSignalWith[T any](name string, initial T, opts ...SignalOption) *Signal[T] {
	s := NewSignal[T](name, opts...)
	s.value = initial
	s.has = true
	return s
}

// Name returns the signal name.
func (s *Signal[T]) Name() string {
	return s.name
}

// Get returns the current value.
func (s *Signal[T]) Get(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		var zero T
		return zero, domain.ErrNoValue
	}
	return s.value, nil
}

// Set stores v and notifies every subscriber, even if v equals the old value.
func (s *Signal[T]) Set(v T) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	update := ports.Update[T]{Value: v, Old: s.value, Timestamp: s.clock.Now()}
	s.value = v
	s.has = true
	subs := make([]subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(update)
	}
}

// Publish is Set with an error return, matching the adapter test harness.
func (s *Signal[T]) Publish(v T) error {
	s.Set(v)
	return nil
}

// Subscribe registers fn.
func (s *Signal[T]) Subscribe(fn func(ports.Update[T])) (ports.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.subs = append(s.subs, subscription[T]{handle: s.next, fn: fn})
	return s.next, nil
}

// Unsubscribe removes a subscription.
func (s *Signal[T]) Unsubscribe(h ports.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.handle == h {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (s *Signal[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
