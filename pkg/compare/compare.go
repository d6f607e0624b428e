// Package compare provides tolerance-aware three-way comparison of measured values.
package compare

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidTolerance is returned when a tolerance is not strictly positive and finite.
var ErrInvalidTolerance = errors.New("tolerances must be positive and finite")

// Result of a comparison.
const (
	Below = -1
	Equal = 0
	Above = 1
)

// Comparator compares values within an absolute plus relative tolerance.
// The zero value is not usable; build one with New or MustNew.
type Comparator struct {
	epsAbs float64
	epsRel float64
}

// New returns a Comparator. Both tolerances must be > 0.
func New(epsAbs, epsRel float64) (Comparator, error) {
	if !(epsAbs > 0) || !(epsRel > 0) || math.IsInf(epsAbs, 0) || math.IsInf(epsRel, 0) {
		return Comparator{}, fmt.Errorf("%w: abs=%g rel=%g", ErrInvalidTolerance, epsAbs, epsRel)
	}
	return Comparator{epsAbs: epsAbs, epsRel: epsRel}, nil
}

// MustNew is like New but panics on invalid tolerances.
func MustNew(epsAbs, epsRel float64) Comparator {
	c, err := New(epsAbs, epsRel)
	if err != nil {
		panic(err)
	}
	return c
}

// Compare returns Equal if |value-reference| <= epsRel*|reference| + epsAbs,
// otherwise the sign of value-reference.
func (c Comparator) Compare(value, reference float64) int {
	return Values(value, reference, c.epsAbs, c.epsRel)
}

// Equal reports whether value matches reference within tolerance.
func (c Comparator) Equal(value, reference float64) bool {
	return c.Compare(value, reference) == Equal
}

// Tolerances returns the absolute and relative tolerance.
func (c Comparator) Tolerances() (epsAbs, epsRel float64) {
	return c.epsAbs, c.epsRel
}

// Values is the free-standing form of Comparator.Compare. It does not validate
// the tolerances.
func Values(value, reference, epsAbs, epsRel float64) int {
	allowed := epsRel*math.Abs(reference) + epsAbs
	diff := value - reference
	if math.Abs(diff) <= allowed {
		return Equal
	}
	if diff > 0 {
		return Above
	}
	return Below
}
