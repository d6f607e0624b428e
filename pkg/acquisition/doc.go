/*
Package acquisition turns three independently updating detector signals into one
exactly-once "take a consistent reading" operation.

A detector exposes a ready flag, an update counter and a payload. After a
trigger the ready flag drops, the payload arrives, the counter moves and ready
rises again, in no guaranteed order and sometimes with the payload re-sent shortly
after delivery. The Engine follows that protocol with a state machine

	idle -> triggered -> acquire -> validate -> finished -> idle
	any  -> failed -> idle (explicit Reset only)

and only declares success after a full validation window of silence following
the last update. Each update in validate restarts the window; superseded checks
are discarded by comparing generation numbers rather than by cancelling timers.
The overall timeout bounds the operation no matter how often the window restarts.

Subscriptions are held only while a session runs and are released on every exit
path: success, dispatch failure, timeout, Reset.
*/
package acquisition
