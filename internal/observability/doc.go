// Package observability builds the process-wide zap logger and the
// OpenTelemetry tracer provider for the chat relay.
//
// Tracing is opt-in. When it is disabled the global no-op tracer provider is
// left in place and spans cost nothing.
package observability
