package domain

import "strconv"

// RampState is the branch of a hysteresis loop an actuator is believed to occupy.
type RampState int

const (
	RampUnknown RampState = iota
	RampUp
	RampDown
	RampTop
	RampBottom
	RampFailed
)

var rampStateNames = [...]string{
	RampUnknown: "unknown",
	RampUp:      "ramp_up",
	RampDown:    "ramp_down",
	RampTop:     "top",
	RampBottom:  "bottom",
	RampFailed:  "failed",
}

func (s RampState) String() string {
	if s < 0 || int(s) >= len(rampStateNames) {
		return "ramp_state(" + strconv.Itoa(int(s)) + ")"
	}
	return rampStateNames[s]
}

// ParseRampState resolves a state name as produced by String.
func ParseRampState(name string) (RampState, bool) {
	for i, n := range rampStateNames {
		if n == name {
			return RampState(i), true
		}
	}
	return RampUnknown, false
}

// AcquisitionState is the phase of a single trigger/acquire/validate cycle.
type AcquisitionState int

const (
	AcquisitionIdle AcquisitionState = iota
	AcquisitionTriggered
	AcquisitionAcquire
	AcquisitionValidate
	AcquisitionFinished
	AcquisitionFailed

	// NumAcquisitionStates sizes state-indexed tables.
	NumAcquisitionStates = int(AcquisitionFailed) + 1
)

var acquisitionStateNames = [...]string{
	AcquisitionIdle:      "idle",
	AcquisitionTriggered: "triggered",
	AcquisitionAcquire:   "acquire",
	AcquisitionValidate:  "validate",
	AcquisitionFinished:  "finished",
	AcquisitionFailed:    "failed",
}

func (s AcquisitionState) String() string {
	if s < 0 || int(s) >= len(acquisitionStateNames) {
		return "acquisition_state(" + strconv.Itoa(int(s)) + ")"
	}
	return acquisitionStateNames[s]
}
