// Package tracing wraps OpenTelemetry for the kernel: boot stages and task
// lifecycle operations are recorded as spans when a provider is installed,
// and are no-ops otherwise.
package tracing
