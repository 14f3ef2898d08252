package valen

import (
	"io"
	"log/slog"

	"github.com/viant/afs"
	"github.com/viant/valen/service/event"
	"github.com/viant/valen/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises a Kernel.
type Option func(k *Kernel)

// WithConfig sets the kernel configuration.
func WithConfig(config *Config) Option {
	return func(k *Kernel) {
		if config != nil {
			k.config = config
		}
	}
}

// WithLogger overrides the logger built from the log configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Kernel) {
		k.logger = logger
	}
}

// WithConsole sets where operator-facing reports such as the page fault
// report are printed.
func WithConsole(w io.Writer) Option {
	return func(k *Kernel) {
		k.console = w
	}
}

// WithEventService replaces the event service built from the events
// configuration.
func WithEventService(service *event.Service) Option {
	return func(k *Kernel) {
		k.events = service
	}
}

// WithFS sets the file system used for dumps.
func WithFS(fs afs.Service) Option {
	return func(k *Kernel) {
		k.fs = fs
	}
}

// WithTracingExporter exports the kernel's spans to exporter through a
// provider owned by this kernel.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(k *Kernel) {
		provider, err := tracing.NewProvider(serviceName, serviceVersion, exporter)
		if err != nil {
			if k.logger != nil {
				k.logger.Warn("failed to create tracer provider", "error", err)
			}
			return
		}
		k.tracer = tracing.NewTracer(provider)
	}
}
