package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/settle/pkg/clock"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "settle:"

// envelope is the pub/sub message format.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"ts"`
}

// Signal implements ports.Signal over a Redis key and channel.
//
// Old values are tracked per subscription, starting from the value stored when
// the subscription was confirmed.
type Signal[T any] struct {
	client  *backend.Client
	name    string
	key     string
	channel string
	clock   clock.Clock
	logger  *slog.Logger
	confirm time.Duration

	mu   sync.Mutex
	next ports.Handle
	subs map[ports.Handle]*backend.PubSub
}

// Option configures a Signal.
type Option func(*options)

type options struct {
	prefix  string
	clock   clock.Clock
	logger  *slog.Logger
	confirm time.Duration
}

// WithPrefix sets the key and channel prefix (default "settle:").
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithClock sets the clock used to timestamp published values.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSubscribeTimeout bounds how long Subscribe waits for the server to
// confirm a subscription (default 5s).
func WithSubscribeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.confirm = d
	}
}

// NewSignal creates a signal named name on client.
func NewSignal[T any](client *backend.Client, name string, opts ...Option) *Signal[T] {
	o := options{
		prefix:  defaultPrefix,
		clock:   clock.System{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		confirm: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Signal[T]{
		client:  client,
		name:    name,
		key:     o.prefix + "value:" + name,
		channel: o.prefix + "updates:" + name,
		clock:   o.clock,
		logger:  o.logger.With("signal", name),
		confirm: o.confirm,
		subs:    make(map[ports.Handle]*backend.PubSub),
	}
}

// Name returns the signal name.
func (s *Signal[T]) Name() string {
	return s.name
}

// Get returns the stored value.
func (s *Signal[T]) Get(ctx context.Context) (T, error) {
	var v T
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, backend.Nil) {
		return v, domain.ErrNoValue
	}
	if err != nil {
		return v, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", s.name, err)
	}
	return v, nil
}

// Publish stores v and announces it in a single transaction.
func (s *Signal[T]) Publish(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.name, err)
	}
	msg, err := json.Marshal(envelope{Value: data, Timestamp: s.clock.Now().UnixNano()})
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.name, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.key, data, 0)
		pipe.Publish(ctx, s.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", s.name, err)
	}
	return nil
}

// Subscribe registers fn. It returns once the server confirmed the subscription,
// so every value published afterwards is delivered.
func (s *Signal[T]) Subscribe(fn func(ports.Update[T])) (ports.Handle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.confirm)
	defer cancel()

	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return 0, fmt.Errorf("redis subscribe %s: %w", s.channel, err)
	}

	old, err := s.Get(ctx)
	if err != nil && !errors.Is(err, domain.ErrNoValue) {
		_ = pubsub.Close()
		return 0, err
	}

	s.mu.Lock()
	s.next++
	h := s.next
	s.subs[h] = pubsub
	s.mu.Unlock()

	go s.deliver(pubsub.Channel(), old, fn)
	return h, nil
}

func (s *Signal[T]) deliver(ch <-chan *backend.Message, old T, fn func(ports.Update[T])) {
	for msg := range ch {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			s.logger.Error("malformed update dropped", "err", err)
			continue
		}
		var v T
		if err := json.Unmarshal(env.Value, &v); err != nil {
			s.logger.Error("malformed value dropped", "err", err)
			continue
		}
		fn(ports.Update[T]{Value: v, Old: old, Timestamp: time.Unix(0, env.Timestamp)})
		old = v
	}
}

// Unsubscribe closes the subscription. It does not wait for a delivery already
// in progress.
func (s *Signal[T]) Unsubscribe(h ports.Handle) error {
	s.mu.Lock()
	pubsub, ok := s.subs[h]
	delete(s.subs, h)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := pubsub.Close(); err != nil {
		return fmt.Errorf("redis unsubscribe %s: %w", s.channel, err)
	}
	return nil
}
