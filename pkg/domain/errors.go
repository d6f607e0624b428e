package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrBranchUnknown is returned when a setpoint plan is requested before the
// tracker knows which branch of the loop the actuator is on.
var ErrBranchUnknown = errors.New("hysteresis branch not established")

// ErrInvalidTiming is returned when acquisition timeouts are not positive or the
// validation window exceeds the overall timeout.
var ErrInvalidTiming = errors.New("invalid acquisition timing")

// ErrNoValue is returned by a signal that has not received any value yet.
var ErrNoValue = errors.New("signal has no value")

// ErrSignalClosed is returned when a signal adapter has been shut down.
var ErrSignalClosed = errors.New("signal closed")

// InvalidTransitionError reports a transition the table does not allow.
// The machine is left in From.
type InvalidTransitionError struct {
	Machine string
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	if e.Machine == "" {
		return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("%s: invalid transition %s -> %s", e.Machine, e.From, e.To)
}

// OutOfRangeError reports a value outside the configured physical bounds,
// or an actuator reading that disagrees with the tracked extreme.
type OutOfRangeError struct {
	Value  float64
	Low    float64
	High   float64
	Reason string
}

func (e *OutOfRangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("value %g out of range [%g, %g]: %s", e.Value, e.Low, e.High, e.Reason)
	}
	return fmt.Sprintf("value %g out of range [%g, %g]", e.Value, e.Low, e.High)
}

// HysteresisFollowError reports a setpoint whose direction contradicts the
// branch being traced. It always leaves the tracker failed.
type HysteresisFollowError struct {
	State   RampState
	Value   float64
	Current float64
}

func (e *HysteresisFollowError) Error() string {
	dir := "below"
	if e.Value > e.Current {
		dir = "above"
	}
	return fmt.Sprintf("hysteresis not followed: %g is %s current %g while %s", e.Value, dir, e.Current, e.State)
}

// AcquisitionTimeoutError reports that no terminal state was reached in time.
type AcquisitionTimeoutError struct {
	Timeout time.Duration
	State   AcquisitionState
}

func (e *AcquisitionTimeoutError) Error() string {
	return fmt.Sprintf("acquisition timed out after %s in state %s", e.Timeout, e.State)
}

// DeviceDesyncError reports a signal update received while the engine was not
// expecting any.
type DeviceDesyncError struct {
	State  AcquisitionState
	Signal string
}

func (e *DeviceDesyncError) Error() string {
	return fmt.Sprintf("device desync: unexpected %s update in state %s", e.Signal, e.State)
}

// DeviceError reports that a device cannot be trusted, either because its
// tracker already failed or because reading it failed.
type DeviceError struct {
	Device string
	Reason string
	Err    error
}

func (e *DeviceError) Error() string {
	msg := e.Reason
	if e.Device != "" {
		msg = e.Device + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is, or wraps, an AcquisitionTimeoutError.
func IsTimeout(err error) bool {
	var te *AcquisitionTimeoutError
	return errors.As(err, &te)
}

// IsInvalidTransition reports whether err is, or wraps, an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ie *InvalidTransitionError
	return errors.As(err, &ie)
}
