/*
Package observability provides monitoring for the agentgraph engine.

It includes Prometheus metrics exposed as lifecycle hooks and an OpenTelemetry
tracing middleware that opens one span per node execution.
*/
package observability
