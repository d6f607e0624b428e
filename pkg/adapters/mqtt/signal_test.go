package mqtt_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/settle/pkg/adapters/mqtt"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paho's client is usable as-is.
var _ mqtt.Client = paho.NewClient(paho.NewClientOptions())

type token struct {
	done chan struct{}
	err  error
}

func settled(err error) *token {
	t := &token{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *token) Wait() bool                     { <-t.done; return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

// broker delivers synchronously and keeps retained messages.
type broker struct {
	mu           sync.Mutex
	handlers     map[string]paho.MessageHandler
	retained     map[string][]byte
	subscribeErr error
	stall        bool
}

func newBroker() *broker {
	return &broker{handlers: map[string]paho.MessageHandler{}, retained: map[string][]byte{}}
}

func (b *broker) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	data := payload.([]byte)
	b.mu.Lock()
	if retained {
		b.retained[topic] = data
	}
	h := b.handlers[topic]
	b.mu.Unlock()
	if h != nil {
		h(nil, message{topic: topic, payload: data})
	}
	return settled(nil)
}

func (b *broker) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	if b.stall {
		return &token{done: make(chan struct{})}
	}
	if b.subscribeErr != nil {
		return settled(b.subscribeErr)
	}
	b.mu.Lock()
	b.handlers[topic] = callback
	data, ok := b.retained[topic]
	b.mu.Unlock()
	if ok {
		callback(nil, message{topic: topic, payload: data})
	}
	return settled(nil)
}

func (b *broker) Unsubscribe(topics ...string) paho.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		delete(b.handlers, topic)
	}
	return settled(nil)
}

func (b *broker) raw(topic string, payload string) {
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	h(nil, message{topic: topic, payload: []byte(payload)})
}

func TestMQTTSignal_Contract(t *testing.T) {
	ports.RunSignalContract(t, func(t *testing.T) ports.SignalHarness[int64] {
		sig, err := mqtt.NewSignal[int64](newBroker(), "lab/detector/counter")
		require.NoError(t, err)
		return ports.SignalHarness[int64]{
			Signal:  sig,
			Publish: func(v int64) error { return sig.Publish(context.Background(), v) },
		}
	}, 1, 2, 3)
}

func TestMQTTSignal_RetainedValueIsCurrent(t *testing.T) {
	b := newBroker()
	writer, err := mqtt.NewSignal[bool](b, "lab/detector/ready")
	require.NoError(t, err)
	require.NoError(t, writer.Publish(context.Background(), true))

	reader, err := mqtt.NewSignal[bool](newBrokerSharing(b), "lab/detector/ready", mqtt.WithName("ready"))
	require.NoError(t, err)
	v, err := reader.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, "ready", reader.Name())
}

// newBrokerSharing returns a broker with the retained state of b.
func newBrokerSharing(b *broker) *broker {
	nb := newBroker()
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range b.retained {
		nb.retained[k] = v
	}
	return nb
}

func TestMQTTSignal_MalformedMessageDropped(t *testing.T) {
	b := newBroker()
	sig, err := mqtt.NewSignal[int64](b, "counter")
	require.NoError(t, err)

	var got []ports.Update[int64]
	_, err = sig.Subscribe(func(u ports.Update[int64]) { got = append(got, u) })
	require.NoError(t, err)

	b.raw("counter", "{")
	b.raw("counter", "5")
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].Value)
}

func TestMQTTSignal_Close(t *testing.T) {
	b := newBroker()
	sig, err := mqtt.NewSignal[int](b, "payload")
	require.NoError(t, err)

	calls := 0
	_, err = sig.Subscribe(func(ports.Update[int]) { calls++ })
	require.NoError(t, err)

	require.NoError(t, sig.Close(context.Background()))
	require.NoError(t, sig.Close(context.Background()))
	require.NoError(t, sig.Publish(context.Background(), 1))
	assert.Equal(t, 0, calls)

	_, err = sig.Subscribe(func(ports.Update[int]) {})
	assert.ErrorIs(t, err, domain.ErrSignalClosed)
}

func TestMQTTSignal_SubscribeErrors(t *testing.T) {
	b := newBroker()
	b.subscribeErr = errors.New("not authorized")
	_, err := mqtt.NewSignal[int](b, "payload")
	assert.ErrorContains(t, err, "not authorized")

	stalled := newBroker()
	stalled.stall = true
	_, err = mqtt.NewSignal[int](stalled, "payload", mqtt.WithTimeout(10*time.Millisecond))
	assert.ErrorContains(t, err, "did not answer")
}
