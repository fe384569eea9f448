// Package telemetry groups the gateway's observability subpackages.
//
//   - logging: structured log/slog logging with PII redaction
//   - health: readiness/liveness checks for the registry and its instances
//
// There is no tracing or metrics subpackage here: the OpenTelemetry
// tracing scaffolding this module started from served a policy/evidence
// subsystem this gateway does not carry, and Prometheus metrics for the
// dispatch pipeline are defined directly in pkg/core/metrics.go rather
// than in a separate telemetry subpackage.
package telemetry
