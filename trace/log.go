// Package trace implements the trace log (§2 point 7, §4 data model's
// TraceRecord row): an append-only record of every executed step, with an
// optional export hook invoked on every terminal outcome.
package trace

import (
	"sync"
	"time"
)

// Record is one terminal step outcome, successful or exhausted.
type Record struct {
	StepQualname  string
	ModelID       string
	Inputs        map[string]interface{}
	PromptHash    string
	ContractHash  string
	Attempts      int
	Output        interface{}
	DurationMS    int64
	CostUSD       *float64
	CacheHit      bool
	RetryReasons  []string
	FlowID        string // empty if none
	ReviewID      string // empty if none
	ProviderSystem string
	InputTokens   *int
	OutputTokens  *int
	RecordedAt    time.Time
}

// ExportFunc is the tracer hook (§6 "produced"): a single callable invoked
// at every terminal trace write with a flat attribute map.
type ExportFunc func(attrs map[string]interface{})

// Log is the append-only in-memory trace store. One Log is shared by every
// step executed within a process; it is the runtime's only persistence
// beyond the in-memory caches (§2 Non-goals).
type Log struct {
	mu      sync.Mutex
	records []Record
	export  ExportFunc
}

// New creates an empty Log. export may be nil, in which case Append only
// retains the record in memory.
func New(export ExportFunc) *Log {
	return &Log{export: export}
}

// Append records r and, if an export hook is configured, invokes it with
// the flat attribute projection of r. Append never blocks the caller on
// export failure: hook panics are not recovered here because §6 requires
// the hook itself to swallow its own errors (the built-in exporter does).
func (l *Log) Append(r Record) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	l.mu.Lock()
	l.records = append(l.records, r)
	hook := l.export
	l.mu.Unlock()

	if hook != nil {
		hook(Attrs(r))
	}
}

// Records returns a snapshot of every record appended so far, in append
// order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Attrs projects a Record into the flat attribute map the export hook
// receives (§6): provider system, model id, step qualname, contract hash,
// attempts, cost usd (nullable), cache hit, flow id (nullable), duration
// ms, input/output token counts if available.
func Attrs(r Record) map[string]interface{} {
	attrs := map[string]interface{}{
		"provider_system": r.ProviderSystem,
		"model_id":        r.ModelID,
		"step_qualname":   r.StepQualname,
		"contract_hash":   r.ContractHash,
		"attempts":        r.Attempts,
		"cache_hit":       r.CacheHit,
		"duration_ms":     r.DurationMS,
	}
	if r.CostUSD != nil {
		attrs["cost_usd"] = *r.CostUSD
	}
	if r.FlowID != "" {
		attrs["flow_id"] = r.FlowID
	}
	if r.InputTokens != nil {
		attrs["input_tokens"] = *r.InputTokens
	}
	if r.OutputTokens != nil {
		attrs["output_tokens"] = *r.OutputTokens
	}
	return attrs
}
