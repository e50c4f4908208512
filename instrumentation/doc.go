// Package instrumentation wires OpenTelemetry metrics and tracing for the
// authentication subsystem. All helpers are nil-safe: a nil *Instrumentation
// or *Metrics disables recording, so callers never guard their own calls.
package instrumentation
