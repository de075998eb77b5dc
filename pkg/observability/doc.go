/*
Package observability turns workflow lifecycle events into logs, Prometheus metrics and
OpenTelemetry traces.

Metrics exposes counters and histograms fed by domain.LifecycleHooks; LoggingHooks writes
the same events through slog; CombineHooks fans one event out to several hook sets.
InitTracing installs a global tracer provider selected by exporter name.
*/
package observability
