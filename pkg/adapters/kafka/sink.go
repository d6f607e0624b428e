// Package kafka publishes settled readings to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer a Sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Sink writes one JSON message per value, keyed so that readings of the same
// detector stay on one partition and keep their order.
type Sink struct {
	writer MessageWriter
	closer io.Closer
	topic  string
	logger *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// NewSink creates a sink writing to topic on brokers.
func NewSink(brokers []string, topic string, opts ...Option) (*Sink, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka: topic must not be empty")
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
		BatchTimeout:           10 * time.Millisecond,
	}
	s := NewSinkWithWriter(w, opts...)
	s.topic = topic
	s.closer = w
	return s, nil
}

// NewSinkWithWriter creates a sink on an existing writer. The writer is not
// closed by Close.
func NewSinkWithWriter(w MessageWriter, opts ...Option) *Sink {
	s := &Sink{
		writer: w,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish encodes v as JSON and writes it under key.
func (s *Sink) Publish(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", key, err)
	}
	msg := kafka.Message{Key: []byte(key), Value: data, Time: time.Now()}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", key, err)
	}
	s.logger.Debug("reading published", "key", key, "topic", s.topic, "bytes", len(data))
	return nil
}

// Close flushes and closes the writer created by NewSink.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
