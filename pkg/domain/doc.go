/*
Package domain contains the core vocabulary shared by the settle engines.

It defines the state sets of both machines, the hysteresis bounds, the typed error
taxonomy and the transition events emitted for observability. The package is kept
pure and free of I/O, timers and external dependencies.

# Key Entities

  - RampState: the branch of a hysteresis loop an actuator occupies.
  - AcquisitionState: the phase of a trigger/acquire/validate cycle.
  - Bounds: the (bottom, top) extremes of a hysteresis loop.
  - TransitionEvent / TransitionHooks: callbacks fired after every state change.
*/
package domain
