package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/settle/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by an UnlockFunc whose lease had already lapsed or
// been taken over.
var ErrLeaseLost = errors.New("lease no longer held")

// releaseScript deletes the lease only if it still carries our token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker implements ports.Locker with SET NX PX.
type Locker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
}

// NewLocker creates a locker. An empty prefix uses "settle:".
func NewLocker(client *backend.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Locker{client: client, prefix: prefix, poll: 50 * time.Millisecond}
}

// Lock takes the lease on key, retrying until ctx ends.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	leaseKey := l.prefix + "lease:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, leaseKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lease %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				n, err := l.client.Eval(ctx, releaseScript, []string{leaseKey}, token).Int()
				if err != nil {
					return fmt.Errorf("redis release %s: %w", key, err)
				}
				if n == 0 {
					return ErrLeaseLost
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
