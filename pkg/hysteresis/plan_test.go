package hysteresis_test

import (
	"context"
	"testing"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToValue(t *testing.T) {
	cases := []struct {
		name    string
		state   domain.RampState
		current float64
		target  float64
		want    []float64
	}{
		{"bottom to bottom", domain.RampBottom, bottom, bottom, []float64{}},
		{"bottom to bottom within tolerance", domain.RampBottom, bottom, bottom + 0.005, []float64{}},
		{"bottom direct", domain.RampBottom, bottom, 4, []float64{4}},
		{"top direct", domain.RampTop, top, -4, []float64{-4}},
		{"ramp up onward", domain.RampUp, 0, 5, []float64{5}},
		{"ramp up below current completes ramp", domain.RampUp, 0, -5, []float64{top, -5}},
		{"ramp down onward", domain.RampDown, 0, -5, []float64{-5}},
		{"ramp down above current completes ramp", domain.RampDown, 0, 5, []float64{bottom, 5}},
		{"ramp up already there", domain.RampUp, 3, 3, []float64{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, _ := newTracker(t, tc.current)
			require.NoError(t, tr.StartTracingRamp(context.Background(), tc.state, true))

			got, err := tr.ToValue(context.Background(), tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToValue_RequiresBranch(t *testing.T) {
	tr, _ := newTracker(t, 0)

	_, err := tr.ToValue(context.Background(), 5)
	assert.ErrorIs(t, err, domain.ErrBranchUnknown)
}

func TestToValue_RejectsOutOfRange(t *testing.T) {
	tr, _ := newTracker(t, 0)
	require.NoError(t, tr.StartTracingRamp(context.Background(), domain.RampUp, true))

	_, err := tr.ToValue(context.Background(), top+1)
	var oor *domain.OutOfRangeError
	assert.ErrorAs(t, err, &oor)
	assert.Equal(t, domain.RampUp, tr.State(), "planning never fails the tracker")
}

func TestCycleToValue(t *testing.T) {
	cases := []struct {
		name    string
		state   domain.RampState
		current float64
		target  float64
		n       int
		want    []float64
	}{
		{"from bottom", domain.RampBottom, bottom, 3, 2, []float64{top, bottom, top, bottom, 3}},
		{"from ramp up", domain.RampUp, 0, -2, 1, []float64{top, bottom, -2}},
		{"from top", domain.RampTop, top, 3, 1, []float64{bottom, top, 3}},
		{"from ramp down", domain.RampDown, 0, 0, 1, []float64{bottom, top, 0}},
		{"ending on the landing extreme", domain.RampBottom, bottom, bottom, 1, []float64{top, bottom}},
		{"zero cycles delegates", domain.RampUp, 0, -5, 0, []float64{top, -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, _ := newTracker(t, tc.current)
			require.NoError(t, tr.StartTracingRamp(context.Background(), tc.state, true))

			got, err := tr.CycleToValue(context.Background(), tc.target, tc.n)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCycleToValue_Errors(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, 0)

	_, err := tr.CycleToValue(ctx, 1, 2)
	assert.ErrorIs(t, err, domain.ErrBranchUnknown)

	require.NoError(t, tr.StartTracingRamp(ctx, domain.RampUp, true))
	_, err = tr.CycleToValue(ctx, 1, -1)
	assert.Error(t, err)
}

// A plan produced by the tracker is always accepted when traced step by step.
func TestPlan_IsTraceable(t *testing.T) {
	ctx := context.Background()
	tr, act := newTracker(t, 0)
	require.NoError(t, tr.StartTracingRamp(ctx, domain.RampUp, true))

	for _, target := range []float64{5, -3, 7, bottom, 2, top, -8} {
		plan, err := tr.CycleToValue(ctx, target, 1)
		require.NoError(t, err)
		for _, sp := range plan {
			trace(t, tr, act, sp)
		}
		v, _ := act.CurrentValue(ctx)
		assert.InDelta(t, target, v, 1e-9)
		assert.NotEqual(t, domain.RampFailed, tr.State())

		plan, err = tr.ToValue(ctx, -target/2)
		require.NoError(t, err)
		for _, sp := range plan {
			trace(t, tr, act, sp)
		}
	}
}
