// Package simulator provides in-memory stand-ins for the devices the state
// machines coordinate: a triggered detector and a magnet power supply.
//
// Both run on a clock.Clock, so a clock.Manual makes whole sessions replayable.
package simulator
