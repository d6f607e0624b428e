package domain

import (
	"fmt"
	"math"
)

// Bounds are the extremes of a hysteresis loop. Bottom < Top, both finite.
type Bounds struct {
	Bottom float64 `json:"bottom" yaml:"bottom" mapstructure:"bottom"`
	Top    float64 `json:"top" yaml:"top" mapstructure:"top"`
}

// NewBounds validates and returns a Bounds value.
func NewBounds(bottom, top float64) (Bounds, error) {
	b := Bounds{Bottom: bottom, Top: top}
	return b, b.Validate()
}

// Validate checks the bounds invariant.
func (b Bounds) Validate() error {
	if math.IsNaN(b.Bottom) || math.IsInf(b.Bottom, 0) || math.IsNaN(b.Top) || math.IsInf(b.Top, 0) {
		return fmt.Errorf("bounds must be finite, got [%g, %g]", b.Bottom, b.Top)
	}
	if b.Bottom >= b.Top {
		return fmt.Errorf("bounds bottom %g must be below top %g", b.Bottom, b.Top)
	}
	return nil
}
