package tracing

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every kernel span.
const TracerName = "github.com/viant/valen"

// Init installs the stdout exporter writing to outputFile, or to os.Stdout
// when outputFile is empty. The first successful installation wins.
func Init(serviceName, serviceVersion, outputFile string) error {
	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return err
		}
		w = f
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return err
	}
	return installProvider(serviceName, serviceVersion, exporter)
}

// InitWithExporter installs the supplied exporter. The first successful
// installation wins.
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) error {
	return installProvider(serviceName, serviceVersion, exporter)
}

var (
	providerOnce sync.Once
	providerErr  error
)

func installProvider(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) error {
	if exporter == nil {
		return nil
	}
	providerOnce.Do(func() {
		tp, err := NewProvider(serviceName, serviceVersion, exporter)
		if err != nil {
			providerErr = err
			return
		}
		otel.SetTracerProvider(tp)
	})
	return providerErr
}

// NewProvider creates a provider exporting every span to exporter as it
// ends. The provider is not installed globally.
func NewProvider(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	), nil
}

// Tracer starts spans from a single provider.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a tracer backed by provider, or by the global provider
// when provider is nil.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(TracerName)}
}

// StartSpan starts a child span of the span carried by ctx.
func (t *Tracer) StartSpan(ctx context.Context, name, kind string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(spanKind(kind)))
	return ctx, &Span{span: span}
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// WithAttributes attaches string attributes to the span.
func (s *Span) WithAttributes(attrs map[string]string) *Span {
	if s == nil || len(attrs) == 0 {
		return s
	}
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}
	s.span.SetAttributes(kv...)
	return s
}

// WithInt attaches an integer attribute to the span.
func (s *Span) WithInt(key string, value int64) *Span {
	if s == nil {
		return s
	}
	s.span.SetAttributes(attribute.Int64(key, value))
	return s
}

// SetStatus records err on the span, or an OK status when err is nil.
func (s *Span) SetStatus(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// StartSpan starts a child span of the span carried by ctx using the global
// provider. Kind is one of SERVER, CLIENT, PRODUCER, CONSUMER; anything else
// is INTERNAL.
func StartSpan(ctx context.Context, name, kind string) (context.Context, *Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name, trace.WithSpanKind(spanKind(kind)))
	return ctx, &Span{span: span}
}

func spanKind(kind string) trace.SpanKind {
	switch kind {
	case "SERVER":
		return trace.SpanKindServer
	case "CLIENT":
		return trace.SpanKindClient
	case "PRODUCER":
		return trace.SpanKindProducer
	case "CONSUMER":
		return trace.SpanKindConsumer
	}
	return trace.SpanKindInternal
}

// EndSpan records the status derived from err and ends the span.
func EndSpan(s *Span, err error) {
	if s == nil {
		return
	}
	s.SetStatus(err)
	s.span.End()
}
