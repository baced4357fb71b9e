// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the Waycrest compositor.
//
// Logging is built on zerolog with per-component child loggers. Metrics use
// a dedicated Prometheus registry exposed over an optional HTTP endpoint.
// Tracing supports stdout and OTLP exporters and is disabled by default;
// the compositor's hot path (input and rendering) is never traced, only
// control-plane dispatch and config lifecycle events.
package telemetry
