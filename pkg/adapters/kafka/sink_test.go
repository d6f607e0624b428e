package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/settle/pkg/adapters/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	sink := kafka.NewSinkWithWriter(w)

	require.NoError(t, sink.Publish(context.Background(), "detector-1", map[string]any{"counter": 7}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "detector-1", string(w.msgs[0].Key))

	var body map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, 7, body["counter"])
	assert.NoError(t, sink.Close(), "borrowed writers are left open")
}

func TestSink_Errors(t *testing.T) {
	boom := errors.New("leader not available")
	sink := kafka.NewSinkWithWriter(&fakeWriter{err: boom})

	assert.ErrorIs(t, sink.Publish(context.Background(), "k", 1), boom)
	assert.Error(t, sink.Publish(context.Background(), "k", func() {}), "unencodable value")
}

func TestNewSink_Validation(t *testing.T) {
	_, err := kafka.NewSink(nil, "readings")
	assert.Error(t, err)

	_, err = kafka.NewSink([]string{"localhost:9092"}, " ")
	assert.Error(t, err)

	sink, err := kafka.NewSink([]string{"localhost:9092"}, "readings")
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}
