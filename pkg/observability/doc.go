/*
Package observability provides tools for monitoring flow machines.

Metrics and Logging turn machine lifecycle events into Prometheus series and
structured log records; both return flow.Hooks to pass to flow.WithHooks.
InitTracing installs an OpenTelemetry provider so the spans machines open
around dispatches are exported. An Aggregator merges the change streams of
several machines into one channel of snapshots.
*/
package observability
