package hysteresis

import (
	"context"
	"fmt"

	"github.com/aretw0/settle/pkg/domain"
)

// ToValue returns the setpoints that reach value from the actuator's current
// position without reversing mid-ramp. The caller commands them in order.
//
// The plan is empty if the actuator is already at value. On an extreme the
// target is reached directly. On a ramp heading away from value the ramp is
// completed first.
func (t *Tracker) ToValue(ctx context.Context, value float64) ([]float64, error) {
	if err := t.CheckValue(ctx, value); err != nil {
		return nil, err
	}
	current, err := t.read(ctx)
	if err != nil {
		return nil, err
	}
	return t.plan(t.machine.Current(), current, value)
}

// CycleToValue runs n full hysteresis cycles before settling on value, erasing
// any minor-loop history. From the bottom or a rising ramp each cycle is
// [top, bottom]; from the top or a falling ramp it is [bottom, top].
func (t *Tracker) CycleToValue(ctx context.Context, value float64, n int) ([]float64, error) {
	if n < 0 {
		return nil, fmt.Errorf("%s: negative cycle count %d", t.name, n)
	}
	if n == 0 {
		return t.ToValue(ctx, value)
	}
	if err := t.CheckValue(ctx, value); err != nil {
		return nil, err
	}

	b := t.bounds
	var first, second float64
	var landing domain.RampState
	switch state := t.machine.Current(); state {
	case domain.RampBottom, domain.RampUp:
		first, second, landing = b.Top, b.Bottom, domain.RampBottom
	case domain.RampTop, domain.RampDown:
		first, second, landing = b.Bottom, b.Top, domain.RampTop
	default:
		return nil, fmt.Errorf("%s: %w (state %s)", t.name, domain.ErrBranchUnknown, state)
	}

	seq := make([]float64, 0, 2*n+1)
	for i := 0; i < n; i++ {
		seq = append(seq, first, second)
	}
	tail, err := t.plan(landing, second, value)
	if err != nil {
		return nil, err
	}
	return append(seq, tail...), nil
}

func (t *Tracker) plan(state domain.RampState, current, value float64) ([]float64, error) {
	flag := t.cmp.Compare(value, current)
	if flag == 0 {
		return []float64{}, nil
	}
	switch state {
	case domain.RampBottom, domain.RampTop:
		return []float64{value}, nil
	case domain.RampUp:
		if flag < 0 {
			return []float64{t.bounds.Top, value}, nil
		}
		return []float64{value}, nil
	case domain.RampDown:
		if flag > 0 {
			return []float64{t.bounds.Bottom, value}, nil
		}
		return []float64{value}, nil
	}
	return nil, fmt.Errorf("%s: %w (state %s)", t.name, domain.ErrBranchUnknown, state)
}
