package hysteresis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/settle/pkg/compare"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/fsm"
	"github.com/aretw0/settle/pkg/ports"
)

// Default tolerances for comparing setpoints.
const (
	DefaultAbsTolerance = 1e-3
	DefaultRelTolerance = 1e-3
)

var rampTable = fsm.Table[domain.RampState]{
	domain.RampUnknown: {domain.RampUp, domain.RampDown, domain.RampTop, domain.RampBottom, domain.RampFailed},
	domain.RampUp:      {domain.RampTop, domain.RampFailed},
	domain.RampDown:    {domain.RampBottom, domain.RampFailed},
	domain.RampTop:     {domain.RampDown, domain.RampFailed},
	domain.RampBottom:  {domain.RampUp, domain.RampFailed},
	domain.RampFailed:  {domain.RampUnknown, domain.RampFailed},
}

// Tracker follows one actuator around its hysteresis loop.
type Tracker struct {
	name     string
	machine  *fsm.Machine[domain.RampState]
	bounds   domain.Bounds
	cmp      compare.Comparator
	actuator ports.Actuator
	logger   *slog.Logger
}

type config struct {
	name   string
	epsAbs float64
	epsRel float64
	logger *slog.Logger
	hooks  domain.TransitionHooks
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*config)

// WithName sets the name used in logs, errors and events (default "hysteresis").
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithTolerance sets the comparison tolerances. Both must be > 0.
func WithTolerance(epsAbs, epsRel float64) Option {
	return func(c *config) {
		c.epsAbs = epsAbs
		c.epsRel = epsRel
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithHooks registers transition hooks.
func WithHooks(hooks domain.TransitionHooks) Option {
	return func(c *config) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithNow overrides the event timestamp source.
func WithNow(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// New creates a tracker in the unknown state.
func New(actuator ports.Actuator, bounds domain.Bounds, opts ...Option) (*Tracker, error) {
	c := config{
		name:   "hysteresis",
		epsAbs: DefaultAbsTolerance,
		epsRel: DefaultRelTolerance,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if actuator == nil {
		return nil, fmt.Errorf("%s: actuator is required", c.name)
	}
	if err := bounds.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	cmp, err := compare.New(c.epsAbs, c.epsRel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}

	logger := c.logger.With("tracker", c.name)
	hooks := domain.TransitionHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.Debug("ramp state changed", "from", e.From, "to", e.To)
		},
	}.Merge(c.hooks)

	return &Tracker{
		name:     c.name,
		machine:  fsm.New(c.name, rampTable, domain.RampUnknown, fsm.WithHooks(hooks), fsm.WithNow(c.now)),
		bounds:   bounds,
		cmp:      cmp,
		actuator: actuator,
		logger:   logger,
	}, nil
}

// Name returns the tracker name.
func (t *Tracker) Name() string { return t.name }

// State returns the tracked branch.
func (t *Tracker) State() domain.RampState { return t.machine.Current() }

// StateName returns the tracked branch as a string.
func (t *Tracker) StateName() string { return t.machine.Current().String() }

// Bounds returns the loop extremes.
func (t *Tracker) Bounds() domain.Bounds { return t.bounds }

// Snapshot is a point-in-time view of a tracker.
type Snapshot struct {
	Name    string        `json:"name" yaml:"name"`
	State   string        `json:"state" yaml:"state"`
	Bounds  domain.Bounds `json:"bounds" yaml:"bounds"`
	Current float64       `json:"current" yaml:"current"`
}

// Snapshot reads the actuator and reports it with the tracked branch.
func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	current, err := t.read(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Name: t.name, State: t.StateName(), Bounds: t.bounds, Current: current}, nil
}

// CheckRange returns an *domain.OutOfRangeError if value lies below low or above
// high, within tolerance.
func (t *Tracker) CheckRange(value, low, high float64) error {
	if t.cmp.Compare(value, low) < 0 || t.cmp.Compare(value, high) > 0 {
		return &domain.OutOfRangeError{Value: value, Low: low, High: high}
	}
	return nil
}

// CheckConsistency verifies the actuator agrees with the tracked state: it must
// lie inside the bounds, and on the extreme the tracker believes it sits on.
func (t *Tracker) CheckConsistency(ctx context.Context) error {
	state := t.machine.Current()
	if state == domain.RampFailed {
		return &domain.DeviceError{Device: t.name, Reason: "hysteresis tracker failed, recalibration required"}
	}
	current, err := t.read(ctx)
	if err != nil {
		return err
	}
	b := t.bounds
	if err := t.CheckRange(current, b.Bottom, b.Top); err != nil {
		return &domain.OutOfRangeError{Value: current, Low: b.Bottom, High: b.Top, Reason: "actuator outside loop bounds"}
	}
	switch state {
	case domain.RampBottom:
		if !t.cmp.Equal(current, b.Bottom) {
			return &domain.OutOfRangeError{Value: current, Low: b.Bottom, High: b.Bottom, Reason: "tracked at bottom"}
		}
	case domain.RampTop:
		if !t.cmp.Equal(current, b.Top) {
			return &domain.OutOfRangeError{Value: current, Low: b.Top, High: b.Top, Reason: "tracked at top"}
		}
	}
	return nil
}

// CheckValue range-checks value against the bounds and then checks consistency.
func (t *Tracker) CheckValue(ctx context.Context, value float64) error {
	if err := t.CheckRange(value, t.bounds.Bottom, t.bounds.Top); err != nil {
		return err
	}
	return t.CheckConsistency(ctx)
}

// Set traces a setpoint that is about to be commanded. It never moves hardware.
//
// While unknown it does nothing. A value that fails CheckValue, or that runs
// against the current branch, fails the tracker.
func (t *Tracker) Set(ctx context.Context, value float64) error {
	state := t.machine.Current()
	if state == domain.RampUnknown {
		t.logger.Debug("set ignored, branch unknown", "value", value)
		return nil
	}
	if err := t.CheckValue(ctx, value); err != nil {
		t.fail(ctx, "check failed", err)
		return err
	}
	current, err := t.read(ctx)
	if err != nil {
		t.fail(ctx, "read failed", err)
		return err
	}

	flag := t.cmp.Compare(value, current)
	switch state {
	case domain.RampBottom, domain.RampUp:
		if flag < 0 {
			err := &domain.HysteresisFollowError{State: state, Value: value, Current: current}
			t.fail(ctx, "hysteresis not followed", err)
			return err
		}
	case domain.RampTop, domain.RampDown:
		if flag > 0 {
			err := &domain.HysteresisFollowError{State: state, Value: value, Current: current}
			t.fail(ctx, "hysteresis not followed", err)
			return err
		}
	}

	for _, next := range t.advance(state, value) {
		if err := t.machine.TransitionContext(ctx, next); err != nil {
			t.fail(ctx, "transition refused", err)
			return err
		}
	}
	return nil
}

// advance returns the states to walk through after accepting value.
func (t *Tracker) advance(state domain.RampState, value float64) []domain.RampState {
	atBottom := t.cmp.Equal(value, t.bounds.Bottom)
	atTop := t.cmp.Equal(value, t.bounds.Top)

	switch state {
	case domain.RampBottom:
		if atBottom {
			return nil
		}
		if atTop {
			return []domain.RampState{domain.RampUp, domain.RampTop}
		}
		return []domain.RampState{domain.RampUp}
	case domain.RampUp:
		if atTop {
			return []domain.RampState{domain.RampTop}
		}
	case domain.RampTop:
		if atTop {
			return nil
		}
		if atBottom {
			return []domain.RampState{domain.RampDown, domain.RampBottom}
		}
		return []domain.RampState{domain.RampDown}
	case domain.RampDown:
		if atBottom {
			return []domain.RampState{domain.RampBottom}
		}
	}
	return nil
}

// StartTracingRamp (re)calibrates the tracker onto a known branch. With
// resetFailed a failed tracker is cleared first; otherwise a failed tracker stays
// failed and an *domain.InvalidTransitionError is returned.
func (t *Tracker) StartTracingRamp(ctx context.Context, start domain.RampState, resetFailed bool) error {
	switch start {
	case domain.RampTop, domain.RampBottom, domain.RampUp, domain.RampDown:
	default:
		return fmt.Errorf("%s: cannot start tracing in state %s", t.name, start)
	}
	if resetFailed && t.machine.Is(domain.RampFailed) {
		if err := t.machine.TransitionContext(ctx, domain.RampUnknown); err != nil {
			return err
		}
		t.logger.Info("failed state cleared")
	}
	if t.machine.Is(start) {
		return nil
	}
	if err := t.machine.TransitionContext(ctx, start); err != nil {
		return err
	}
	t.logger.Info("tracing ramp", "state", start)
	return nil
}

// Fail marks the tracker failed, e.g. when a caller detects desync externally.
func (t *Tracker) Fail(ctx context.Context, reason string) {
	t.fail(ctx, reason, nil)
}

func (t *Tracker) fail(ctx context.Context, reason string, cause error) {
	from := t.machine.Current()
	// Failed is reachable from every state.
	_ = t.machine.TransitionContext(ctx, domain.RampFailed)
	t.logger.Warn("hysteresis tracker failed", "reason", reason, "from", from, "err", cause)
}

func (t *Tracker) read(ctx context.Context) (float64, error) {
	v, err := t.actuator.CurrentValue(ctx)
	if err != nil {
		return 0, &domain.DeviceError{Device: t.name, Reason: "reading current value", Err: err}
	}
	return v, nil
}
