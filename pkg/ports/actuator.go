package ports

import "context"

// Actuator is a device whose current setpoint can be read back, e.g. a magnet
// power supply.
type Actuator interface {
	CurrentValue(ctx context.Context) (float64, error)
}

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func(ctx context.Context) (float64, error)

// CurrentValue calls f.
func (f ActuatorFunc) CurrentValue(ctx context.Context) (float64, error) {
	return f(ctx)
}
