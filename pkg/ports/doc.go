/*
Package ports defines the driven ports (interfaces) the settle engines consume.

These interfaces decouple the state machines from the control system that carries
the hardware values, so the same engine runs against in-memory signals, Redis
pub/sub or an MQTT broker.

# Key Interfaces

  - Signal: a hardware value that can be read and subscribed to.
  - Actuator: a device whose current setpoint can be read back.
*/
package ports
