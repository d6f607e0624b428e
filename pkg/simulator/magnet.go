package simulator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/hysteresis"
)

// Magnet is a simulated power supply whose every move is traced by a tracker.
type Magnet struct {
	tracker  *hysteresis.Tracker
	actuator *memory.Actuator
	step     float64
	logger   *slog.Logger
}

// MagnetOption configures a Magnet.
type MagnetOption func(*Magnet)

// WithStep makes the magnet ramp in increments of at most step, tracing each
// intermediate value. Zero moves straight to each setpoint.
func WithStep(step float64) MagnetOption {
	return func(m *Magnet) {
		m.step = math.Abs(step)
	}
}

// WithMagnetLogger configures the structured logger.
func WithMagnetLogger(logger *slog.Logger) MagnetOption {
	return func(m *Magnet) {
		m.logger = logger
	}
}

// NewMagnet pairs a tracker with the actuator it reads.
func NewMagnet(tracker *hysteresis.Tracker, actuator *memory.Actuator, opts ...MagnetOption) *Magnet {
	m := &Magnet{
		tracker:  tracker,
		actuator: actuator,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tracker returns the tracker following the magnet.
func (m *Magnet) Tracker() *hysteresis.Tracker { return m.tracker }

// Run moves through plan. Each value is traced before the actuator moves; the
// first refused value stops the run with the actuator left where it was.
func (m *Magnet) Run(ctx context.Context, plan []float64) error {
	for _, setpoint := range plan {
		for _, v := range m.steps(ctx, setpoint) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.tracker.Set(ctx, v); err != nil {
				return fmt.Errorf("setpoint %g: %w", v, err)
			}
			m.actuator.Set(v)
		}
		m.logger.Debug("setpoint reached", "value", setpoint, "state", m.tracker.StateName())
	}
	return nil
}

// GoTo plans a move to value along the loop and runs it.
func (m *Magnet) GoTo(ctx context.Context, value float64) ([]float64, error) {
	plan, err := m.tracker.ToValue(ctx, value)
	if err != nil {
		return nil, err
	}
	return plan, m.Run(ctx, plan)
}

// Cycle runs n full loops and ends at value.
func (m *Magnet) Cycle(ctx context.Context, value float64, n int) ([]float64, error) {
	plan, err := m.tracker.CycleToValue(ctx, value, n)
	if err != nil {
		return nil, err
	}
	return plan, m.Run(ctx, plan)
}

func (m *Magnet) steps(ctx context.Context, target float64) []float64 {
	current, err := m.actuator.CurrentValue(ctx)
	if err != nil || m.step == 0 {
		return []float64{target}
	}
	n := int(math.Ceil(math.Abs(target-current) / m.step))
	if n <= 1 {
		return []float64{target}
	}
	out := make([]float64, 0, n)
	for i := 1; i < n; i++ {
		out = append(out, current+(target-current)*float64(i)/float64(n))
	}
	return append(out, target)
}
