package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aretw0/settle/pkg/ports"
)

// ErrLeaseLost is returned when unlocking a lease that lapsed or was taken over.
var ErrLeaseLost = errors.New("lease no longer held")

// Locker implements ports.Locker within one process.
// Safe for concurrent use.
type Locker struct {
	mu   sync.Mutex
	held map[string]*lease
}

type lease struct {
	expires  time.Time
	released chan struct{}
}

// NewLocker creates an empty locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]*lease)}
}

// Lock waits until key is free or its holder's lease lapses.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	for {
		l.mu.Lock()
		cur, ok := l.held[key]
		if !ok || !time.Now().Before(cur.expires) {
			mine := &lease{expires: time.Now().Add(ttl), released: make(chan struct{})}
			l.held[key] = mine
			l.mu.Unlock()
			return func(context.Context) error { return l.release(key, mine) }, nil
		}
		l.mu.Unlock()

		wait := time.NewTimer(time.Until(cur.expires))
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, ctx.Err()
		case <-cur.released:
		case <-wait.C:
		}
		wait.Stop()
	}
}

func (l *Locker) release(key string, mine *lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != mine {
		return ErrLeaseLost
	}
	delete(l.held, key)
	close(mine.released)
	return nil
}
