package settle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/aretw0/settle/pkg/acquisition"
	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/clock"
	"github.com/aretw0/settle/pkg/config"
	"github.com/aretw0/settle/pkg/hysteresis"
	"github.com/aretw0/settle/pkg/observability"
	"github.com/aretw0/settle/pkg/simulator"
	"github.com/prometheus/client_golang/prometheus"
)

// Station is one simulated detector and its magnets, with metrics and a state
// aggregator already attached.
type Station struct {
	Config   config.Config
	Detector *simulator.Detector
	Engine   *acquisition.Engine[simulator.Frame]
	Machines *observability.Aggregator
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	clock   clock.Clock
	logger  *slog.Logger
	magnets map[string]*simulator.Magnet
}

// Option defines a functional option for configuring a Station.
type Option func(*Station)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Station) {
		s.logger = logger
	}
}

// WithClock sets the clock the detector and engine run on. With a
// *clock.Manual, Acquire advances time itself and runs are reproducible.
func WithClock(c clock.Clock) Option {
	return func(s *Station) {
		s.clock = c
	}
}

// New builds a station from cfg.
func New(cfg config.Config, opts ...Option) (*Station, error) {
	s := &Station{
		Config:   cfg,
		Machines: observability.NewAggregator(),
		Registry: prometheus.NewRegistry(),
		clock:    clock.System{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		magnets:  make(map[string]*simulator.Magnet),
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics, err := observability.NewMetrics(s.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	s.Metrics = metrics

	policy, err := acquisition.ParseCounterPolicy(cfg.Acquisition.CounterPolicy)
	if err != nil {
		return nil, err
	}
	s.Detector = simulator.NewDetector(s.clock, cfg.Detector, simulator.WithDetectorLogger(s.logger))
	s.Engine, err = acquisition.New(s.Detector.Signals(),
		acquisition.WithName(cfg.Acquisition.Name),
		acquisition.WithClock(s.clock),
		acquisition.WithLogger(s.logger),
		acquisition.WithHooks(metrics.Hooks()),
		acquisition.WithCounterPolicy(policy),
		acquisition.WithObserver(metrics),
	)
	if err != nil {
		return nil, err
	}
	s.Machines.Add(s.Engine)

	for _, mc := range cfg.Magnets {
		if err := s.addMagnet(mc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Station) addMagnet(mc config.MagnetConfig) error {
	start, err := mc.State()
	if err != nil {
		return fmt.Errorf("magnet %s: %w", mc.Name, err)
	}
	actuator := memory.NewActuator(mc.Start)
	tracker, err := hysteresis.New(actuator, mc.Bounds,
		hysteresis.WithName(mc.Name),
		hysteresis.WithTolerance(mc.EpsAbs, mc.EpsRel),
		hysteresis.WithLogger(s.logger),
		hysteresis.WithHooks(s.Metrics.Hooks()),
		hysteresis.WithNow(s.clock.Now),
	)
	if err != nil {
		return err
	}
	if err := tracker.StartTracingRamp(context.Background(), start, true); err != nil {
		return fmt.Errorf("magnet %s: %w", mc.Name, err)
	}
	s.magnets[mc.Name] = simulator.NewMagnet(tracker, actuator,
		simulator.WithStep(mc.Step),
		simulator.WithMagnetLogger(s.logger),
	)
	s.Machines.Add(tracker)
	return nil
}

// Magnet returns the magnet named name.
func (s *Station) Magnet(name string) (*simulator.Magnet, error) {
	m, ok := s.magnets[name]
	if !ok {
		return nil, fmt.Errorf("unknown magnet %q", name)
	}
	return m, nil
}

// MagnetNames returns the configured magnet names, sorted.
func (s *Station) MagnetNames() []string {
	names := make([]string, 0, len(s.magnets))
	for name := range s.magnets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
