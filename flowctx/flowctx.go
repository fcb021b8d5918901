// Package flowctx implements the flow-scoped context (§4.5 in the data
// model, §5 "Flow context is a task-local scoped value"): a flow
// identifier, a shared budget clone, and a session cache map, propagated
// through Go's context.Context into every step invoked inside the scope.
package flowctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/stepforge/flowrt/budget"
	"github.com/stepforge/flowrt/cache"
)

// FlowContext carries the flow identifier, the flow's shared budget, and
// its session cache. It is created on flow entry and torn down on flow
// exit; a task spawned outside any flow sees none (From returns ok=false).
type FlowContext struct {
	ID      string
	Budget  *budget.Budget
	Session cache.Store
}

type flowCtxKey struct{}

// New creates a fresh FlowContext: a new UUID, the given budget cloned and
// started, and a new in-memory session cache.
func New(b *budget.Budget) *FlowContext {
	if b == nil {
		b = budget.New(nil, nil)
	}
	cloned := b.Clone()
	cloned.Start()
	return &FlowContext{
		ID:      uuid.NewString(),
		Budget:  cloned,
		Session: cache.NewInMemory(),
	}
}

// WithFlow attaches fc to ctx so every step call nested inside inherits it.
func WithFlow(ctx context.Context, fc *FlowContext) context.Context {
	return context.WithValue(ctx, flowCtxKey{}, fc)
}

// From retrieves the ambient FlowContext, if any. Tasks spawned outside a
// flow (no call to WithFlow in their ancestry) get ok=false, matching
// §5's "tasks spawned outside one see none".
func From(ctx context.Context) (*FlowContext, bool) {
	fc, ok := ctx.Value(flowCtxKey{}).(*FlowContext)
	return fc, ok
}

// noFlowCache is the process-wide fallback session-keyed cache used when a
// step executes with no ambient FlowContext (§5: "the fallback 'no flow'
// path uses a process-wide map with the same key scheme").
var noFlowCache = cache.NewInMemory()

// SessionFor returns the session cache to use for a call: the ambient
// flow's session cache if present, otherwise the shared no-flow fallback.
func SessionFor(ctx context.Context) cache.Store {
	if fc, ok := From(ctx); ok {
		return fc.Session
	}
	return noFlowCache
}
