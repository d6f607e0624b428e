package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/fsm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rampTable = fsm.Table[domain.RampState]{
	domain.RampUnknown: {domain.RampBottom},
	domain.RampBottom:  {domain.RampUp},
	domain.RampUp:      {domain.RampTop},
}

func TestMetrics_Transitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	machine := fsm.New("q1", rampTable, domain.RampUnknown, fsm.WithHooks(m.Hooks()))
	require.NoError(t, machine.Transition(domain.RampBottom))
	require.NoError(t, machine.Transition(domain.RampUp))
	assert.Error(t, machine.Transition(domain.RampBottom))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("q1", "bottom", "ramp_up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("q1", "ramp_up", "bottom")))

	expected := `
# HELP settle_machine_state 1 for the current state of each machine, 0 otherwise.
# TYPE settle_machine_state gauge
settle_machine_state{machine="q1",state="bottom"} 0
settle_machine_state{machine="q1",state="ramp_up"} 1
settle_machine_state{machine="q1",state="unknown"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "settle_machine_state"))
}

func TestMetrics_AcquisitionDone(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.AcquisitionDone("det", "success", 120*time.Millisecond, 2)
	m.AcquisitionDone("det", "success", 80*time.Millisecond, 0)
	m.AcquisitionDone("det", "timeout", time.Second, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.acquisitions.WithLabelValues("det", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.acquisitions.WithLabelValues("det", "timeout")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.resets))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
