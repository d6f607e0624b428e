package clock_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/settle/pkg/clock"
	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManual_FiresInDueOrder(t *testing.T) {
	c := clock.NewManual(epoch)
	var order []string
	var firedAt []time.Duration

	record := func(name string) func() {
		return func() {
			order = append(order, name)
			firedAt = append(firedAt, c.Now().Sub(epoch))
		}
	}
	c.AfterFunc(30*time.Millisecond, record("c"))
	c.AfterFunc(10*time.Millisecond, record("a"))
	c.AfterFunc(20*time.Millisecond, record("b1"))
	c.AfterFunc(20*time.Millisecond, record("b2"))

	c.Advance(15 * time.Millisecond)
	assert.Equal(t, []string{"a"}, order)
	assert.Equal(t, 15*time.Millisecond, c.Now().Sub(epoch))

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, order)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, firedAt)
	assert.Equal(t, 0, c.Pending())
}

func TestManual_CallbackCanReschedule(t *testing.T) {
	c := clock.NewManual(epoch)
	var ticks int
	var tick func()
	tick = func() {
		ticks++
		if ticks < 5 {
			c.AfterFunc(10*time.Millisecond, tick)
		}
	}
	c.AfterFunc(10*time.Millisecond, tick)

	c.Advance(35 * time.Millisecond)
	assert.Equal(t, 3, ticks)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, 5, ticks)
}

func TestManual_Stop(t *testing.T) {
	c := clock.NewManual(epoch)
	var fired bool
	timer := c.AfterFunc(time.Millisecond, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Second)
	assert.False(t, fired)

	fire := c.AfterFunc(time.Millisecond, func() {})
	c.Advance(time.Second)
	assert.False(t, fire.Stop())
}

func TestSystem_AfterFunc(t *testing.T) {
	var fired atomic.Bool
	clock.System{}.AfterFunc(time.Millisecond, func() { fired.Store(true) })
	assert.Eventually(t, fired.Load, time.Second, time.Millisecond)
	assert.WithinDuration(t, time.Now(), clock.System{}.Now(), time.Second)
}
