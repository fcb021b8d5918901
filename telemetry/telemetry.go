// Package telemetry provides the OpenTelemetry-backed implementation of
// core.Telemetry used by every component that accepts one, plus the
// context-baggage hook core.Logger uses to stamp log lines with
// trace-correlation fields.
package telemetry

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepforge/flowrt/core"
)

// OTel adapts an OTel TracerProvider to core.Telemetry. Only spans are
// exported; RecordMetric is a no-op.
type OTel struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds an OTel-backed Telemetry for serviceName. If
// OTEL_EXPORTER_OTLP_ENDPOINT is set, spans are batched to that collector
// over gRPC; otherwise spans are written to stdout, which keeps local runs
// and tests usable without a collector.
func New(serviceName string) (*OTel, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	var opts []sdktrace.TracerProviderOption
	opts = append(opts, sdktrace.WithResource(res))

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		exporter, err := otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	} else {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &OTel{
		provider: provider,
		tracer:   provider.Tracer("flowrt"),
	}, nil
}

func (o *OTel) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric is a no-op here: the runtime's own trace log (package trace)
// is the metrics surface for step outcomes; this satisfies core.Telemetry
// for components that also want ad hoc counters routed to OTel, which the
// runtime itself does not currently need.
func (o *OTel) RecordMetric(name string, value float64, labels map[string]string) {}

// Shutdown flushes and closes the underlying trace provider.
func (o *OTel) Shutdown(ctx context.Context) error {
	return o.provider.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toKeyValue(key, value))
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func toKeyValue(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, toString(v))
	}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}

// spanContextBaggage extracts the active span's trace and span IDs so
// core.Logger can stamp log lines with them. Registered against core via
// SetContextBaggageFunc during process init (see Install).
func spanContextBaggage(ctx context.Context) map[string]string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return map[string]string{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}
}

// Install wires this package's context-baggage extraction into
// core.Logger. Call once during process startup.
func Install() {
	core.SetContextBaggageFunc(spanContextBaggage)
}
