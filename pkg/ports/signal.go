package ports

import (
	"context"
	"time"
)

// Update is delivered to subscribers when a signal changes.
type Update[T any] struct {
	Value     T
	Old       T
	Timestamp time.Time
}

// Handle identifies a subscription. It is only meaningful to the signal that issued it.
type Handle uint64

// Signal is an independently updating hardware value.
//
// Implementations deliver the updates of one subscription serially. Delivery to a
// released subscription may still happen if it was already in flight when
// Unsubscribe returned; consumers must tolerate that.
type Signal[T any] interface {
	// Name identifies the signal in logs and errors.
	Name() string

	// Get returns the latest known value.
	// Returns domain.ErrNoValue if the signal never received one.
	Get(ctx context.Context) (T, error)

	// Subscribe registers fn for every subsequent update.
	Subscribe(fn func(Update[T])) (Handle, error)

	// Unsubscribe releases a subscription. Releasing an unknown or already
	// released handle is a no-op.
	Unsubscribe(h Handle) error
}
