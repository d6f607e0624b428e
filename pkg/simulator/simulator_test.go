package simulator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/settle/pkg/acquisition"
	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/clock"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/hysteresis"
	"github.com/aretw0/settle/pkg/simulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acquireOnce(t *testing.T, cfg simulator.DetectorConfig, validation time.Duration) acquisition.Reading[simulator.Frame] {
	t.Helper()
	clk := clock.NewManual(time.Unix(0, 0))
	det := simulator.NewDetector(clk, cfg)
	engine, err := acquisition.New(det.Signals(), acquisition.WithClock(clk))
	require.NoError(t, err)

	res, err := engine.WatchAndTakeData(time.Second, validation)
	require.NoError(t, err)
	assert.Equal(t, int64(1), det.Trigger())

	clk.Advance(time.Second)
	require.True(t, res.Settled())
	reading, err := res.Wait(context.Background())
	require.NoError(t, err)
	return reading
}

func TestDetector_Cycle(t *testing.T) {
	reading := acquireOnce(t, simulator.DetectorConfig{
		AcquireDelay: 10 * time.Millisecond,
		ReadoutDelay: 5 * time.Millisecond,
		Channels:     3,
	}, 50*time.Millisecond)

	assert.Equal(t, simulator.Frame{Shot: 1, Counts: []float64{1, 2, 3}}, reading.Payload)
	assert.Equal(t, int64(1), reading.Counter)
	assert.Equal(t, 65*time.Millisecond, reading.Elapsed)
	assert.Equal(t, 2, reading.WindowResets)
}

func TestDetector_ResendExtendsValidation(t *testing.T) {
	reading := acquireOnce(t, simulator.DetectorConfig{
		AcquireDelay: 10 * time.Millisecond,
		ReadoutDelay: 5 * time.Millisecond,
		ResendAfter:  20 * time.Millisecond,
	}, 50*time.Millisecond)

	assert.Equal(t, 85*time.Millisecond, reading.Elapsed)
	assert.Equal(t, 3, reading.WindowResets)
	assert.Len(t, reading.Payload.Counts, 4)
}

func TestDetector_ShortWindowFinishesBeforeResend(t *testing.T) {
	reading := acquireOnce(t, simulator.DetectorConfig{
		AcquireDelay: 10 * time.Millisecond,
		ReadoutDelay: 5 * time.Millisecond,
		ResendAfter:  20 * time.Millisecond,
	}, 10*time.Millisecond)

	assert.Equal(t, 25*time.Millisecond, reading.Elapsed)
}

func TestDetector_CycleLength(t *testing.T) {
	det := simulator.NewDetector(clock.System{}, simulator.DetectorConfig{
		AcquireDelay: time.Millisecond,
		ReadoutDelay: 2 * time.Millisecond,
		ResendAfter:  3 * time.Millisecond,
	})
	assert.Equal(t, 6*time.Millisecond, det.CycleLength())
}

func newMagnet(t *testing.T, start float64, step float64) (*simulator.Magnet, *memory.Actuator, *[]string) {
	t.Helper()
	var states []string
	act := memory.NewActuator(start)
	tr, err := hysteresis.New(act, domain.Bounds{Bottom: -10, Top: 10}, hysteresis.WithHooks(domain.TransitionHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) { states = append(states, e.To) },
	}))
	require.NoError(t, err)
	return simulator.NewMagnet(tr, act, simulator.WithStep(step)), act, &states
}

func TestMagnet_Cycle(t *testing.T) {
	ctx := context.Background()
	m, act, states := newMagnet(t, -10, 2.5)
	require.NoError(t, m.Tracker().StartTracingRamp(ctx, domain.RampBottom, true))

	plan, err := m.Cycle(ctx, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, -10, 3}, plan)

	v, _ := act.CurrentValue(ctx)
	assert.Equal(t, 3.0, v)
	assert.Equal(t, domain.RampUp, m.Tracker().State())
	assert.Equal(t, []string{"bottom", "ramp_up", "top", "ramp_down", "bottom", "ramp_up"}, *states)
}

func TestMagnet_GoToAgainstBranch(t *testing.T) {
	ctx := context.Background()
	m, act, _ := newMagnet(t, 4, 0)
	require.NoError(t, m.Tracker().StartTracingRamp(ctx, domain.RampUp, true))

	plan, err := m.GoTo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 1}, plan)
	v, _ := act.CurrentValue(ctx)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, domain.RampDown, m.Tracker().State())
}

func TestMagnet_RunRefusesReversal(t *testing.T) {
	ctx := context.Background()
	m, act, _ := newMagnet(t, 4, 0)
	require.NoError(t, m.Tracker().StartTracingRamp(ctx, domain.RampUp, true))

	err := m.Run(ctx, []float64{6, 2})
	var follow *domain.HysteresisFollowError
	require.True(t, errors.As(err, &follow))
	v, _ := act.CurrentValue(ctx)
	assert.Equal(t, 6.0, v, "refused setpoint is never commanded")
	assert.Equal(t, domain.RampFailed, m.Tracker().State())
}

func TestMagnet_RunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, _, _ := newMagnet(t, 0, 0)
	assert.ErrorIs(t, m.Run(ctx, []float64{1}), context.Canceled)
}
