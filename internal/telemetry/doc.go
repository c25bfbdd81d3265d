// Package telemetry centralizes OpenTelemetry SDK setup for the
// coordination service. With telemetry disabled the package installs
// nothing and the global providers remain noop.
package telemetry
