package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	require.NoError(t, InitWithExporter("valen", "test", exporter))

	ctx, boot := StartSpan(context.Background(), "kernel.boot", "INTERNAL")
	_, spawn := StartSpan(ctx, "task.spawn", "INTERNAL")
	spawn.WithAttributes(map[string]string{"task.name": "init"}).WithInt("task.id", 1)
	EndSpan(spawn, nil)
	EndSpan(boot, errors.New("out of frames"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "task.spawn", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, "kernel.boot", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)

	var nilSpan *Span
	EndSpan(nilSpan, nil)
	assert.Nil(t, nilSpan.WithInt("k", 1))
}

func TestTracer_OwnProvider(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider, err := NewProvider("valen", "test", exporter)
	require.NoError(t, err)
	tracer := NewTracer(provider)

	ctx, boot := tracer.StartSpan(context.Background(), "kernel.boot", "INTERNAL")
	_, reap := tracer.StartSpan(ctx, "task.reap", "CONSUMER")
	EndSpan(reap, nil)
	EndSpan(boot, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "task.reap", spans[0].Name)
	assert.Equal(t, trace.SpanKindConsumer, spans[0].SpanKind)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	require.NoError(t, provider.Shutdown(context.Background()))
}
