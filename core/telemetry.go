package core

import "context"

// Telemetry is the narrow interface every component accepts to emit spans
// and metrics, so a component never has to import the OTel SDK directly.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents one telemetry span.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// NoOpTelemetry discards everything. It is the default when no Telemetry is
// configured, so instrumentation calls are always safe to make.
type NoOpTelemetry struct{}

func (NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, NoOpSpan{}
}

func (NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan discards everything.
type NoOpSpan struct{}

func (NoOpSpan) End()                                       {}
func (NoOpSpan) SetAttribute(key string, value interface{}) {}
func (NoOpSpan) RecordError(err error)                      {}
