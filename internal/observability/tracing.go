package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func newServiceResource(serviceName string) *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

// Tracer wraps an OpenTelemetry tracer under a fixed instrumentation
// name, used to bracket stream publish/consume and search calls with
// spans per spec's ambient tracing stack.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by the global otel TracerProvider
// under instrumentationName (e.g. "mnemolite/stream", "mnemolite/search").
// Callers that never configure a TracerProvider get otel's no-op default,
// so this is always safe to construct.
func NewTracer(instrumentationName string) *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// Start begins a span named name, returning the derived context to pass
// to downstream calls and an end function to defer.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

// InitTracerProvider installs a process-wide SDK TracerProvider tagged
// with serviceName as the global otel.Tracer source, so every Tracer
// built with NewTracer actually records spans instead of the package
// default no-op. Callers should defer the returned shutdown func.
func InitTracerProvider(serviceName string) (shutdown func(context.Context) error) {
	res := sdktrace.NewTracerProvider(
		sdktrace.WithResource(newServiceResource(serviceName)),
	)
	otel.SetTracerProvider(res)
	return res.Shutdown
}
