// Package telemetry wires the observability surface: the OpenTelemetry
// tracer provider bootstrap and the Prometheus metrics describing job and
// stage execution behaviour.
package telemetry
