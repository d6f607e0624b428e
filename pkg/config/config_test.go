package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/settle/pkg/config"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log:
  level: debug
acquisition:
  timeout: 2s
  validation: 150ms
  counter_policy: log_only
detector:
  acquire_delay: 10ms
  resend_after: 40ms
source:
  kind: redis
  lease: true
  redis:
    addr: redis:6379
sink:
  brokers: [kafka-1:9092, kafka-2:9092]
magnets:
  - name: q1
    bottom: -5
    top: 5
    start_state: top
    start: 5
    step: 0.5
  - name: q2
    bottom: 0
    top: 100
`

func TestParse_YAML(t *testing.T) {
	cfg, err := config.Parse([]byte(sample), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset keys keep defaults")
	assert.Equal(t, 2*time.Second, cfg.Acquisition.Timeout)
	assert.Equal(t, 150*time.Millisecond, cfg.Acquisition.Validation)
	assert.Equal(t, "log_only", cfg.Acquisition.CounterPolicy)
	assert.Equal(t, 10*time.Millisecond, cfg.Detector.AcquireDelay)
	assert.Equal(t, 20*time.Millisecond, cfg.Detector.ReadoutDelay)
	assert.Equal(t, 40*time.Millisecond, cfg.Detector.ResendAfter)
	assert.Equal(t, config.SourceRedis, cfg.Source.Kind)
	assert.Equal(t, "redis:6379", cfg.Source.Redis.Addr)
	assert.Equal(t, "settle:", cfg.Source.Redis.Prefix)
	assert.True(t, cfg.Source.Lease)
	assert.True(t, cfg.Sink.Enabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Sink.Brokers)
	assert.Equal(t, "settle.readings", cfg.Sink.Topic)

	require.Len(t, cfg.Magnets, 2, "magnets replace the default list")
	q1, ok := cfg.Magnet("q1")
	require.True(t, ok)
	assert.Equal(t, domain.Bounds{Bottom: -5, Top: 5}, q1.Bounds)
	assert.Equal(t, 0.5, q1.Step)
	state, err := q1.State()
	require.NoError(t, err)
	assert.Equal(t, domain.RampTop, state)

	q2, ok := cfg.Magnet("q2")
	require.True(t, ok)
	assert.Equal(t, "bottom", q2.StartState)
	assert.Greater(t, q2.EpsAbs, 0.0)

	_, ok = cfg.Magnet("q3")
	assert.False(t, ok)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := config.Parse(nil, "yaml")
	require.NoError(t, err)
	def := config.Default()
	assert.Equal(t, def.Acquisition, cfg.Acquisition)
	assert.False(t, cfg.Sink.Enabled())
	assert.Equal(t, "magnet", cfg.Magnets[0].Name)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown key":         "acquisiton:\n  timeout: 1s\n",
		"bad duration":        "acquisition:\n  timeout: soon\n",
		"invalid timing":      "acquisition:\n  timeout: 1s\n  validation: 2s\n",
		"counter policy":      "acquisition:\n  counter_policy: sometimes\n",
		"source kind":         "source:\n  kind: carrier-pigeon\n",
		"lease without redis": "source:\n  kind: mqtt\n  lease: true\n",
		"sink without topic":  "sink:\n  brokers: [k:9092]\n  topic: \"\"\n",
		"inverted bounds":     "magnets:\n  - name: q\n    bottom: 1\n    top: -1\n",
		"duplicate magnet":    "magnets:\n  - {name: q, bottom: 0, top: 1}\n  - {name: q, bottom: 0, top: 1}\n",
		"start state":         "magnets:\n  - {name: q, bottom: 0, top: 1, start_state: failed}\n",
		"malformed":           "acquisition: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc), "yaml")
			assert.Error(t, err)
		})
	}
}

func TestParse_InvalidTimingIsTyped(t *testing.T) {
	_, err := config.Parse([]byte("acquisition:\n  timeout: 1s\n  validation: 2s\n"), "yaml")
	assert.ErrorIs(t, err, domain.ErrInvalidTiming)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "settle.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"server": {"addr": ":9000"}, "acquisition": {"timeout": "3s"}}`), 0o644))
	cfg, err := config.Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Acquisition.Timeout)

	yamlPath := filepath.Join(dir, "settle.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sample), 0o644))
	_, err = config.Load(yamlPath)
	require.NoError(t, err)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, config.Default().Validate())
}
