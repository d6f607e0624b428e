// Package config loads settle configuration files.
//
// Files are YAML (or JSON, by extension), decoded into a generic map and mapped
// onto Config with mapstructure, so durations may be written as "250ms" and
// unknown keys are reported instead of silently ignored.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/settle/pkg/acquisition"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/hysteresis"
	"github.com/aretw0/settle/pkg/simulator"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceSimulated = "simulated"
	SourceRedis     = "redis"
	SourceMQTT      = "mqtt"
)

// Config is the root of a settle configuration file.
type Config struct {
	Log         LogConfig                `mapstructure:"log"`
	Server      ServerConfig             `mapstructure:"server"`
	Acquisition AcquisitionConfig        `mapstructure:"acquisition"`
	Detector    simulator.DetectorConfig `mapstructure:"detector"`
	Source      SourceConfig             `mapstructure:"source"`
	Sink        SinkConfig               `mapstructure:"sink"`
	Magnets     []MagnetConfig           `mapstructure:"magnets"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// AcquisitionConfig configures the acquisition engine.
type AcquisitionConfig struct {
	Name       string        `mapstructure:"name"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Validation time.Duration `mapstructure:"validation"`
	// CounterPolicy is "forces_validate" or "log_only".
	CounterPolicy string `mapstructure:"counter_policy"`
}

// SourceConfig says where detector signals come from.
type SourceConfig struct {
	Kind    string      `mapstructure:"kind"`
	Ready   string      `mapstructure:"ready"`
	Counter string      `mapstructure:"counter"`
	Payload string      `mapstructure:"payload"`
	Redis   RedisConfig `mapstructure:"redis"`
	MQTT    MQTTConfig  `mapstructure:"mqtt"`
	// Lease takes a Redis lease on the detector for every session.
	Lease bool `mapstructure:"lease"`
}

type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
}

// SinkConfig says where settled readings are forwarded. Empty brokers disable it.
type SinkConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether readings are forwarded.
func (s SinkConfig) Enabled() bool { return len(s.Brokers) > 0 }

// MagnetConfig describes one actuator followed by a hysteresis tracker.
type MagnetConfig struct {
	Name          string `mapstructure:"name"`
	domain.Bounds `mapstructure:",squash"`
	// Start is the simulated actuator value at startup.
	Start float64 `mapstructure:"start"`
	// StartState is the branch tracing starts on: top, bottom, ramp_up or ramp_down.
	StartState string  `mapstructure:"start_state"`
	EpsAbs     float64 `mapstructure:"eps_abs"`
	EpsRel     float64 `mapstructure:"eps_rel"`
	// Step is the simulated ramp increment; zero jumps straight to setpoints.
	Step float64 `mapstructure:"step"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{Addr: ":2112"},
		Acquisition: AcquisitionConfig{
			Name:          "detector",
			Timeout:       5 * time.Second,
			Validation:    200 * time.Millisecond,
			CounterPolicy: "forces_validate",
		},
		Detector: simulator.DetectorConfig{
			AcquireDelay: 50 * time.Millisecond,
			ReadoutDelay: 20 * time.Millisecond,
			Channels:     4,
		},
		Source: SourceConfig{
			Kind:    SourceSimulated,
			Ready:   "ready",
			Counter: "counter",
			Payload: "payload",
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "settle:"},
			MQTT:    MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "settle", QoS: 1},
		},
		Sink: SinkConfig{Topic: "settle.readings"},
		Magnets: []MagnetConfig{{
			Name:       "magnet",
			Bounds:     domain.Bounds{Bottom: -10, Top: 10},
			Start:      -10,
			StartState: "bottom",
			EpsAbs:     hysteresis.DefaultAbsTolerance,
			EpsRel:     hysteresis.DefaultRelTolerance,
		}},
	}
}

// Load reads path and overlays it on Default. A missing path is an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data ("yaml" or "json") over Default and validates the result.
func Parse(data []byte, format string) (Config, error) {
	raw := map[string]any{}
	switch format {
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}

	cfg := Default()
	if len(raw) > 0 {
		if _, ok := raw["magnets"]; ok {
			cfg.Magnets = nil
		}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			Result:           &cfg,
		})
		if err != nil {
			return Config{}, err
		}
		if err := decoder.Decode(raw); err != nil {
			return Config{}, fmt.Errorf("invalid config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Magnets {
		m := &c.Magnets[i]
		if m.EpsAbs == 0 {
			m.EpsAbs = hysteresis.DefaultAbsTolerance
		}
		if m.EpsRel == 0 {
			m.EpsRel = hysteresis.DefaultRelTolerance
		}
		if m.StartState == "" {
			m.StartState = domain.RampBottom.String()
		}
	}
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	a := c.Acquisition
	if a.Timeout <= 0 || a.Validation <= 0 || a.Validation > a.Timeout {
		errs = append(errs, fmt.Errorf("acquisition: %w: timeout %s, validation %s", domain.ErrInvalidTiming, a.Timeout, a.Validation))
	}
	if _, err := acquisition.ParseCounterPolicy(a.CounterPolicy); err != nil {
		errs = append(errs, err)
	}
	switch c.Source.Kind {
	case SourceSimulated, SourceRedis, SourceMQTT:
	default:
		errs = append(errs, fmt.Errorf("source: unknown kind %q", c.Source.Kind))
	}
	if c.Source.Lease && c.Source.Kind != SourceRedis {
		errs = append(errs, errors.New("source: lease requires the redis source"))
	}
	if c.Sink.Enabled() && strings.TrimSpace(c.Sink.Topic) == "" {
		errs = append(errs, errors.New("sink: topic is required with brokers"))
	}

	seen := map[string]bool{}
	for i, m := range c.Magnets {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("magnets[%d]: name is required", i))
		} else if seen[m.Name] {
			errs = append(errs, fmt.Errorf("magnets[%d]: duplicate name %q", i, m.Name))
		}
		seen[m.Name] = true
		if err := m.Bounds.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("magnets[%d]: %w", i, err))
		}
		if _, err := m.State(); err != nil {
			errs = append(errs, fmt.Errorf("magnets[%d]: %w", i, err))
		}
		if m.EpsAbs <= 0 || m.EpsRel <= 0 {
			errs = append(errs, fmt.Errorf("magnets[%d]: tolerances must be positive", i))
		}
	}
	return errors.Join(errs...)
}

// Magnet returns the magnet named name.
func (c Config) Magnet(name string) (MagnetConfig, bool) {
	for _, m := range c.Magnets {
		if m.Name == name {
			return m, true
		}
	}
	return MagnetConfig{}, false
}

// State parses StartState.
func (m MagnetConfig) State() (domain.RampState, error) {
	s, ok := domain.ParseRampState(m.StartState)
	if !ok {
		return domain.RampUnknown, fmt.Errorf("unknown start state %q", m.StartState)
	}
	switch s {
	case domain.RampTop, domain.RampBottom, domain.RampUp, domain.RampDown:
		return s, nil
	}
	return domain.RampUnknown, fmt.Errorf("cannot start tracing in state %s", s)
}
