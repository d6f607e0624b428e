/*
Package hysteresis tracks which branch of a hysteresis loop an actuator occupies
and plans setpoint sequences that never retrace a minor loop.

A magnet driven through the loop bottom -> top -> bottom has a reproducible field
only if every excursion runs monotonically from one extreme to the other. The
Tracker enforces that discipline:

  - Set traces each setpoint before it is commanded and fails the tracker if the
    direction contradicts the current branch.
  - ToValue and CycleToValue plan the intermediate setpoints needed to reach a
    target without reversing mid-ramp.

The failed state is sticky. Once a tracker fails, every check and plan returns an
error until StartTracingRamp recalibrates it.

A Tracker is a plain state object and is not safe for concurrent use.
*/
package hysteresis
