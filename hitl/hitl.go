// Package hitl implements human-in-the-loop suspension (§4.8): a
// PendingReview is handed to a ReviewSink and the call suspends until the
// sink resolves it or the timeout elapses.
package hitl

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stepforge/flowrt/core"
)

// DecisionType names the Go type a HumanDecision's Value must satisfy.
// Validated with reflection against the concrete value passed to Resolve.
type DecisionType string

const (
	DecisionBool   DecisionType = "bool"
	DecisionString DecisionType = "string"
	DecisionNumber DecisionType = "number"
)

// TimeoutPolicy controls what happens when a review's deadline elapses
// before resolution.
type TimeoutPolicy string

const (
	OnTimeoutRaise    TimeoutPolicy = "raise"
	OnTimeoutFallback TimeoutPolicy = "fallback"
)

// ReviewContext is the question/trigger/artifacts shown to the reviewer.
type ReviewContext struct {
	Question  string
	Trigger   string
	Artifacts map[string]interface{}
}

// HumanDecision is the immutable outcome of a resolved review.
type HumanDecision struct {
	Value     interface{}
	Reviewer  string
	Rationale string
	DecidedAt time.Time
	ReviewID  string
}

// PendingReview is created at a suspension point and resolved by a sink.
// It is durable until resolved or expired: Resolve may be called exactly
// once from any goroutine, and Await blocks the suspending call until it
// is.
type PendingReview struct {
	ID           string
	Context      ReviewContext
	Options      []string
	Expiry       time.Time
	DecisionType DecisionType

	mu       sync.Mutex
	done     chan struct{}
	decision *HumanDecision
	resolved bool
}

func newPendingReview(rc ReviewContext, options []string, expiry time.Time, dt DecisionType) *PendingReview {
	return &PendingReview{
		ID:           uuid.NewString(),
		Context:      rc,
		Options:      options,
		Expiry:       expiry,
		DecisionType: dt,
		done:         make(chan struct{}),
	}
}

// Resolve completes the review with the given raw value. It is idempotent
// in the sense that only the first call takes effect; subsequent calls
// return an error describing the mismatch or the already-resolved state.
// The decided value is type-checked against DecisionType — on mismatch the
// error is returned to the caller (the sink), which may re-prompt, and the
// review remains pending.
func (p *PendingReview) Resolve(value interface{}, reviewer, rationale string) error {
	if err := checkType(p.DecisionType, value); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return fmt.Errorf("hitl: review %s already resolved", p.ID)
	}
	p.decision = &HumanDecision{
		Value:     value,
		Reviewer:  reviewer,
		Rationale: rationale,
		DecidedAt: time.Now(),
		ReviewID:  p.ID,
	}
	p.resolved = true
	close(p.done)
	return nil
}

func checkType(dt DecisionType, value interface{}) error {
	var want reflect.Kind
	switch dt {
	case DecisionBool:
		want = reflect.Bool
	case DecisionString:
		want = reflect.String
	case DecisionNumber:
		want = reflect.Float64
	default:
		return nil // unconstrained decision type
	}
	got := reflect.ValueOf(value).Kind()
	numeric := got == reflect.Int || got == reflect.Int64 || got == reflect.Float32 || got == reflect.Float64
	if want == reflect.Float64 && numeric {
		return nil
	}
	if got != want {
		return fmt.Errorf("hitl: decision value %v (%s) does not match expected type %s", value, got, dt)
	}
	return nil
}

// ReviewSink presents a review to its channel (terminal, email, chat,
// webhook) and arranges for Resolve to be called exactly once. Emit must
// be non-blocking: sinks that need user input dispatch collection to a
// background task (§4.8).
type ReviewSink interface {
	Emit(ctx context.Context, review *PendingReview) error
}

// AwaitOptions configures one await_human call.
type AwaitOptions struct {
	Options    []string
	Timeout    time.Duration // 0 = no timeout
	OnTimeout  TimeoutPolicy
	Fallback   interface{} // value synthesized on OnTimeoutFallback
}

// Await creates a PendingReview, hands it to sink.Emit, and suspends until
// the review is resolved or the timeout elapses. On timeout it either
// raises HITLTimeout or returns a synthesized HumanDecision per
// AwaitOptions.OnTimeout.
func Await(ctx context.Context, sink ReviewSink, rc ReviewContext, dt DecisionType, opts AwaitOptions) (*HumanDecision, error) {
	var expiry time.Time
	if opts.Timeout > 0 {
		expiry = time.Now().Add(opts.Timeout)
	}
	review := newPendingReview(rc, opts.Options, expiry, dt)

	if err := sink.Emit(ctx, review); err != nil {
		return nil, core.NewRuntimeError("hitl.Await", "hitl", review.ID, err)
	}

	var timeoutCh <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-review.done:
		review.mu.Lock()
		d := review.decision
		review.mu.Unlock()
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeoutCh:
		if opts.OnTimeout == OnTimeoutFallback {
			return &HumanDecision{
				Value:     opts.Fallback,
				Reviewer:  "auto",
				Rationale: "timeout",
				DecidedAt: time.Now(),
				ReviewID:  review.ID,
			}, nil
		}
		return nil, &core.HITLTimeout{ReviewID: review.ID}
	}
}
