package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SignalHarness bundles a fresh signal with a way to drive it.
type SignalHarness[T any] struct {
	Signal  Signal[T]
	Publish func(T) error
}

// RunSignalContract runs a suite of tests to verify that a Signal implementation
// adheres to the defined interface contract. newHarness must return a signal that
// has never received a value. a, b and c must be distinct.
func RunSignalContract[T comparable](t *testing.T, newHarness func(t *testing.T) SignalHarness[T], a, b, c T) {
	ctx := context.Background()
	const wait = 2 * time.Second
	const tick = 5 * time.Millisecond

	t.Run("Get Without Value", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.Signal.Get(ctx)
		assert.ErrorIs(t, err, domain.ErrNoValue)
		assert.NotEmpty(t, h.Signal.Name())
	})

	t.Run("Get Latest", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.Publish(a))
		require.NoError(t, h.Publish(b))
		assert.Eventually(t, func() bool {
			v, err := h.Signal.Get(ctx)
			return err == nil && v == b
		}, wait, tick)
	})

	t.Run("Subscribe Delivers Value And Old", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.Publish(a))
		assert.Eventually(t, func() bool {
			v, err := h.Signal.Get(ctx)
			return err == nil && v == a
		}, wait, tick)

		var mu sync.Mutex
		var got []Update[T]
		handle, err := h.Signal.Subscribe(func(u Update[T]) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, u)
		})
		require.NoError(t, err)
		defer func() { _ = h.Signal.Unsubscribe(handle) }()

		require.NoError(t, h.Publish(b))
		require.NoError(t, h.Publish(c))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 2
		}, wait, tick)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, b, got[0].Value)
		assert.Equal(t, a, got[0].Old)
		assert.Equal(t, c, got[1].Value)
		assert.Equal(t, b, got[1].Old)
		assert.False(t, got[1].Timestamp.IsZero())
	})

	t.Run("Unsubscribe Stops Delivery", func(t *testing.T) {
		h := newHarness(t)

		var mu sync.Mutex
		var first, second int
		h1, err := h.Signal.Subscribe(func(Update[T]) { mu.Lock(); first++; mu.Unlock() })
		require.NoError(t, err)
		h2, err := h.Signal.Subscribe(func(Update[T]) { mu.Lock(); second++; mu.Unlock() })
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)

		require.NoError(t, h.Publish(a))
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return first == 1 && second == 1
		}, wait, tick)

		require.NoError(t, h.Signal.Unsubscribe(h1))
		require.NoError(t, h.Signal.Unsubscribe(h1), "double release must be a no-op")

		require.NoError(t, h.Publish(b))
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return second == 2
		}, wait, tick)

		mu.Lock()
		assert.Equal(t, 1, first)
		mu.Unlock()
		require.NoError(t, h.Signal.Unsubscribe(h2))
	})
}
