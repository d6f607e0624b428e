package memory

import (
	"context"
	"sync"
)

// Actuator implements ports.Actuator in memory.
// Safe for concurrent use.
type Actuator struct {
	mu    sync.RWMutex
	value float64
	err   error
}

// NewActuator creates an actuator sitting at value.
func NewActuator(value float64) *Actuator {
	return &Actuator{value: value}
}

// CurrentValue returns the current setpoint, or the injected read error.
func (a *Actuator) CurrentValue(ctx context.Context) (float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.err != nil {
		return 0, a.err
	}
	return a.value, nil
}

// Set moves the actuator.
func (a *Actuator) Set(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = value
}

// FailReads makes CurrentValue return err until called again with nil.
func (a *Actuator) FailReads(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}
