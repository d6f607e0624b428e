package observability

import (
	"sort"
	"sync"
)

// StateReporter is a machine that can describe its current state.
// Tracker and Engine both qualify.
type StateReporter interface {
	Name() string
	StateName() string
}

// MachineState is one entry of a snapshot.
type MachineState struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Aggregator combines several machines into a single view.
// Safe for concurrent use.
type Aggregator struct {
	mu       sync.RWMutex
	machines map[string]StateReporter
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{machines: make(map[string]StateReporter)}
}

// Add registers m under its name, replacing any machine with the same name.
func (a *Aggregator) Add(m StateReporter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.machines[m.Name()] = m
}

// Snapshot returns the current state of every machine, sorted by name.
func (a *Aggregator) Snapshot() []MachineState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]MachineState, 0, len(a.machines))
	for name, m := range a.machines {
		out = append(out, MachineState{Name: name, State: m.StateName()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
