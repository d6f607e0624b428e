// Package mqtt bridges detector values published on MQTT topics into
// ports.Signal.
//
// A Signal holds one broker subscription for its topic and fans updates out
// locally, so engines can subscribe and release as often as they like without
// broker round trips. Values are JSON; publishing retains them so late joiners
// see the current value.
package mqtt

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
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Client is the part of paho's mqtt.Client a Signal needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var errTokenTimeout = errors.New("broker did not answer in time")

// Signal implements ports.Signal on one MQTT topic.
// Safe for concurrent use.
type Signal[T any] struct {
	client  Client
	name    string
	topic   string
	qos     byte
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration

	deliver sync.Mutex

	mu     sync.Mutex
	value  T
	has    bool
	next   ports.Handle
	subs   []subscription[T]
	closed bool
}

type subscription[T any] struct {
	handle ports.Handle
	fn     func(ports.Update[T])
}

// Option configures a Signal.
type Option func(*options)

type options struct {
	name    string
	qos     byte
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration
}

// WithName sets the signal name (default: the topic).
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithQoS sets the quality of service for subscribing and publishing (default 1).
func WithQoS(qos byte) Option {
	return func(o *options) {
		o.qos = qos
	}
}

// WithClock sets the clock used to timestamp updates.
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

// WithTimeout bounds each broker round trip (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// NewSignal subscribes to topic and returns the signal once the broker
// confirmed. Close releases the broker subscription.
func NewSignal[T any](client Client, topic string, opts ...Option) (*Signal[T], error) {
	o := options{
		name:    topic,
		qos:     1,
		clock:   clock.System{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Signal[T]{
		client:  client,
		name:    o.name,
		topic:   topic,
		qos:     o.qos,
		clock:   o.clock,
		logger:  o.logger.With("signal", o.name, "topic", topic),
		timeout: o.timeout,
	}

	token := client.Subscribe(topic, o.qos, s.onMessage)
	if err := s.await(context.Background(), token); err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return s, nil
}

// Name returns the signal name.
func (s *Signal[T]) Name() string {
	return s.name
}

// Get returns the last value received from the broker.
func (s *Signal[T]) Get(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		var zero T
		return zero, domain.ErrNoValue
	}
	return s.value, nil
}

// Publish sends v as a retained message and waits for the broker.
func (s *Signal[T]) Publish(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.name, err)
	}
	if err := s.await(ctx, s.client.Publish(s.topic, s.qos, true, data)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", s.topic, err)
	}
	return nil
}

// Subscribe registers fn for every subsequent message.
func (s *Signal[T]) Subscribe(fn func(ports.Update[T])) (ports.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, domain.ErrSignalClosed
	}
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

// Close drops every subscriber and unsubscribes from the broker.
func (s *Signal[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.subs = nil
	s.mu.Unlock()

	if err := s.await(ctx, s.client.Unsubscribe(s.topic)); err != nil {
		return fmt.Errorf("mqtt unsubscribe %s: %w", s.topic, err)
	}
	return nil
}

func (s *Signal[T]) onMessage(_ paho.Client, msg paho.Message) {
	var v T
	if err := json.Unmarshal(msg.Payload(), &v); err != nil {
		s.logger.Error("malformed message dropped", "err", err)
		return
	}

	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
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

func (s *Signal[T]) await(ctx context.Context, token paho.Token) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errTokenTimeout
	}
}
