package simulator

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/settle/pkg/acquisition"
	"github.com/aretw0/settle/pkg/adapters/memory"
	"github.com/aretw0/settle/pkg/clock"
)

// Frame is the payload a simulated detector publishes for one trigger.
type Frame struct {
	Shot   int64     `json:"shot"`
	Counts []float64 `json:"counts"`
}

// DetectorConfig shapes one trigger cycle.
type DetectorConfig struct {
	// AcquireDelay is the time between ready dropping and the payload being published.
	AcquireDelay time.Duration `yaml:"acquire_delay" mapstructure:"acquire_delay"`
	// ReadoutDelay is the time between the payload and ready rising again.
	ReadoutDelay time.Duration `yaml:"readout_delay" mapstructure:"readout_delay"`
	// ResendAfter, when positive, publishes the same payload again this long
	// after ready rose.
	ResendAfter time.Duration `yaml:"resend_after" mapstructure:"resend_after"`
	// Channels is the number of values in each frame.
	Channels int `yaml:"channels" mapstructure:"channels"`
}

// Detector drives ready, counter and payload signals through trigger cycles.
// Safe for concurrent use.
type Detector struct {
	cfg    DetectorConfig
	clock  clock.Clock
	logger *slog.Logger

	ready   *memory.Signal[bool]
	counter *memory.Signal[int64]
	payload *memory.Signal[Frame]

	mu   sync.Mutex
	shot int64
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithDetectorLogger configures the structured logger.
func WithDetectorLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		d.logger = logger
	}
}

// NewDetector creates an idle detector: ready high, counter at zero, no payload.
func NewDetector(clk clock.Clock, cfg DetectorConfig, opts ...DetectorOption) *Detector {
	if cfg.Channels <= 0 {
		cfg.Channels = 4
	}
	d := &Detector{
		cfg:     cfg,
		clock:   clk,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		ready:   memory.NewSignalWith("ready", true, memory.WithClock(clk)),
		counter: memory.NewSignalWith[int64]("counter", 0, memory.WithClock(clk)),
		payload: memory.NewSignal[Frame]("payload", memory.WithClock(clk)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Signals returns the detector's signals for an acquisition engine.
func (d *Detector) Signals() acquisition.Signals[Frame] {
	return acquisition.Signals[Frame]{Ready: d.ready, Counter: d.counter, Payload: d.payload}
}

// Trigger starts one cycle: ready drops now, the rest follows on the clock.
// It returns the shot number the cycle will publish.
func (d *Detector) Trigger() int64 {
	d.mu.Lock()
	d.shot++
	shot := d.shot
	d.mu.Unlock()

	frame := d.frame(shot)
	d.logger.Debug("trigger", "shot", shot)
	d.ready.Set(false)

	d.clock.AfterFunc(d.cfg.AcquireDelay, func() {
		d.payload.Set(frame)
		d.counter.Set(shot)
		d.clock.AfterFunc(d.cfg.ReadoutDelay, func() {
			d.ready.Set(true)
			if d.cfg.ResendAfter > 0 {
				d.clock.AfterFunc(d.cfg.ResendAfter, func() {
					d.logger.Debug("payload resent", "shot", shot)
					d.payload.Set(frame)
				})
			}
		})
	})
	return shot
}

// CycleLength is the time from Trigger until the last update of a cycle.
func (d *Detector) CycleLength() time.Duration {
	n := d.cfg.AcquireDelay + d.cfg.ReadoutDelay
	if d.cfg.ResendAfter > 0 {
		n += d.cfg.ResendAfter
	}
	return n
}

func (d *Detector) frame(shot int64) Frame {
	counts := make([]float64, d.cfg.Channels)
	for i := range counts {
		counts[i] = float64(shot * int64(i+1))
	}
	return Frame{Shot: shot, Counts: counts}
}
