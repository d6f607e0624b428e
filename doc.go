/*
Package settle coordinates slow physical devices with two small state machines.

An acquisition engine (package acquisition) watches a triggered detector through
three independently updating signals and reports a reading only once the
detector has gone quiet for a validation window. A hysteresis tracker (package
hysteresis) follows a magnet power supply around its loop, refuses setpoints
that would reverse a ramp, and plans moves that keep the loop intact.

# Usage

Station wires one simulated detector and a set of simulated magnets from a
configuration file:

	cfg, err := config.Load("settle.yaml")
	if err != nil {
		log.Fatal(err)
	}
	station, err := settle.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	reading, err := station.Acquire(ctx)

Real devices plug in through the ports.Signal and ports.Actuator interfaces; the
adapters packages provide Redis and MQTT signals.
*/
package settle
