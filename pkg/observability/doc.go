/*
Package observability exports what the state machines do.

Metrics turns transition hooks and acquisition outcomes into Prometheus series.
Aggregator collects the current state of every registered machine for status
endpoints.
*/
package observability
