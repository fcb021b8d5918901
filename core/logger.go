package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the minimal structured logging interface the runtime depends
// on. Context-aware variants exist so call sites inside a flow can carry
// flow/review correlation IDs without threading them through every field
// map by hand.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger returns a child logger scoped to a dotted component
// path ("runtime/step", "runtime/hitl", ...), which shows up as the
// "component" field on every line it emits.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. It is the zero-value default so callers
// never need a nil check.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}

// contextBaggage, when non-nil, extracts correlation fields (flow id,
// review id, ...) from a context for inclusion in structured log lines.
// The telemetry package installs this hook so core never imports it
// directly.
var contextBaggage func(ctx context.Context) map[string]string
var baggageMu sync.RWMutex

// SetContextBaggageFunc lets an observability layer register how to pull
// correlation fields out of a context. Safe to call once at startup.
func SetContextBaggageFunc(fn func(ctx context.Context) map[string]string) {
	baggageMu.Lock()
	defer baggageMu.Unlock()
	contextBaggage = fn
}

func baggageFor(ctx context.Context) map[string]string {
	baggageMu.RLock()
	fn := contextBaggage
	baggageMu.RUnlock()
	if fn == nil || ctx == nil {
		return nil
	}
	return fn(ctx)
}

// ProductionLogger emits one JSON object (or a human-readable line) per
// call, tagged with a service name and a component path.
type ProductionLogger struct {
	serviceName string
	component   string
	level       string
	format      string // "json" | "text"
	output      io.Writer
}

// NewProductionLogger builds a top-level logger. format is "json" or
// "text"; level is "debug"|"info"|"warn"|"error".
func NewProductionLogger(serviceName, level, format string, output io.Writer) *ProductionLogger {
	if output == nil {
		output = os.Stdout
	}
	if format == "" {
		format = "json"
	}
	if level == "" {
		level = "info"
	}
	return &ProductionLogger{
		serviceName: serviceName,
		component:   "runtime",
		level:       strings.ToLower(level),
		format:      format,
		output:      output,
	}
}

// WithComponent returns a logger scoped to a component path, sharing the
// parent's output/level/format.
func (p *ProductionLogger) WithComponent(component string) Logger {
	child := *p
	child.component = component
	return &child
}

func (p *ProductionLogger) enabled(level string) bool {
	order := map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}
	return order[level] >= order[p.level]
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.log(nil, "info", msg, fields)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.log(nil, "warn", msg, fields)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.log(nil, "error", msg, fields)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.log(nil, "debug", msg, fields)
}
func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, "info", msg, fields)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, "warn", msg, fields)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, "error", msg, fields)
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, "debug", msg, fields)
}

func (p *ProductionLogger) log(ctx context.Context, level, msg string, fields map[string]interface{}) {
	if !p.enabled(level) {
		return
	}
	ts := time.Now().UTC().Format(time.RFC3339Nano)

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}
		for k, v := range baggageFor(ctx) {
			entry["trace."+k] = v
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var b strings.Builder
	for k, v := range baggageFor(ctx) {
		fmt.Fprintf(&b, "%s=%v ", k, v)
	}
	for k, v := range fields {
		fmt.Fprintf(&b, "%s=%v ", k, v)
	}
	fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s %s\n", ts, strings.ToUpper(level), p.serviceName, p.component, msg, b.String())
}
