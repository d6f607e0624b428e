package acquisition

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/settle/pkg/clock"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/ports"
)

// CounterPolicy decides what a counter change means while acquiring.
type CounterPolicy int

const (
	// CounterForcesValidate moves to validate on a counter change. Default.
	CounterForcesValidate CounterPolicy = iota
	// CounterLogOnly only logs counter changes; ready or payload must follow.
	CounterLogOnly
)

// ParseCounterPolicy is the inverse of CounterPolicy.String. Empty means the default.
func ParseCounterPolicy(s string) (CounterPolicy, error) {
	switch s {
	case "", "forces_validate":
		return CounterForcesValidate, nil
	case "log_only":
		return CounterLogOnly, nil
	}
	return CounterForcesValidate, fmt.Errorf("unknown counter policy %q", s)
}

func (p CounterPolicy) String() string {
	if p == CounterLogOnly {
		return "log_only"
	}
	return "forces_validate"
}

// Outcome labels reported to an Observer.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	OutcomeAborted = "aborted"
)

// Observer receives one call per finished session.
type Observer interface {
	AcquisitionDone(engine, outcome string, elapsed time.Duration, windowResets int)
}

type config struct {
	name     string
	clock    clock.Clock
	logger   *slog.Logger
	hooks    domain.TransitionHooks
	policy   CounterPolicy
	observer Observer
	locker   ports.Locker
}

// Option configures an Engine.
type Option func(*config)

// WithName sets the engine name used in logs, errors and events (default "acquisition").
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithClock sets the timer facility for validation windows and timeouts.
func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		c.clock = clk
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

// WithCounterPolicy selects how counter changes are handled while acquiring.
func WithCounterPolicy(p CounterPolicy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithObserver reports session outcomes, e.g. to metrics.
func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// WithLocker makes Acquire hold a lease on the engine name for the whole session,
// so engines in different processes never drive the same detector together.
func WithLocker(l ports.Locker) Option {
	return func(c *config) {
		c.locker = l
	}
}

func defaults() config {
	return config{
		name:   "acquisition",
		clock:  clock.System{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		policy: CounterForcesValidate,
	}
}
