package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lease.
type UnlockFunc func(ctx context.Context) error

// Locker grants exclusive, time-bounded ownership of a device so that two
// processes never run sessions against the same detector at once.
type Locker interface {
	// Lock blocks until the lease on key is held or ctx ends. The lease lapses
	// after ttl even if the returned UnlockFunc is never called.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
