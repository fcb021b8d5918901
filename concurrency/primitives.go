// Package concurrency implements the concurrency primitives (§4.6):
// parallel(all/any/N/collect), race, debate, and refine. All of them are
// concurrent-scheduled and honour cancellation per §5.
package concurrency

import (
	"context"
	"sync"

	"github.com/stepforge/flowrt/core"
)

// Branch is one concurrently-scheduled unit of work — typically a closure
// over a step.Executor.Execute call with its inputs bound.
type Branch func(ctx context.Context) (interface{}, error)

// Result wraps one branch outcome for Collect, which never propagates an
// individual branch's error.
type Result struct {
	Value interface{}
	Err   error
}

type branchOutcome struct {
	index int
	value interface{}
	err   error
}

// runAll starts every branch under ctx and streams outcomes back on a
// channel in completion order; the caller is responsible for cancelling
// ctx once it has what it needs, which drains the remaining branches so no
// goroutine leaks or reports an unhandled error (§5 "cancellation hygiene").
func runAll(ctx context.Context, branches []Branch) (<-chan branchOutcome, *sync.WaitGroup) {
	out := make(chan branchOutcome, len(branches))
	var wg sync.WaitGroup
	wg.Add(len(branches))
	for i, b := range branches {
		go func(i int, b Branch) {
			defer wg.Done()
			v, err := b(ctx)
			out <- branchOutcome{index: i, value: v, err: err}
		}(i, b)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, &wg
}

// All runs every branch to completion; on any failure it cancels the rest
// and propagates that failure. On success, results are returned in input
// order (not completion order), and an optional validator runs against the
// full result vector.
func All(ctx context.Context, branches []Branch, validator func([]interface{}) (bool, error)) ([]interface{}, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out, _ := runAll(ctx, branches)
	results := make([]interface{}, len(branches))
	seen := 0
	for outcome := range out {
		if outcome.err != nil {
			cancel()
			drain(out)
			return nil, outcome.err
		}
		results[outcome.index] = outcome.value
		seen++
		if seen == len(branches) {
			break
		}
	}

	if validator != nil {
		ok, err := validator(results)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &core.ParallelValidationFailed{Message: "result vector rejected by validator"}
		}
	}
	return results, nil
}

// Any returns the first branch to succeed and cancels the rest. If every
// branch fails, it raises the last observed failure.
func Any(ctx context.Context, branches []Branch) (interface{}, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out, _ := runAll(ctx, branches)
	var lastErr error
	failures := 0
	for outcome := range out {
		if outcome.err == nil {
			cancel()
			drain(out)
			return outcome.value, nil
		}
		lastErr = outcome.err
		failures++
		if failures == len(branches) {
			break
		}
	}
	return nil, lastErr
}

// Race is parallel(any), kept as a distinct name for readability at call
// sites where "first to answer wins" reads better than "any".
func Race(ctx context.Context, branches []Branch) (interface{}, error) {
	return Any(ctx, branches)
}

// N gathers every branch, requires at least n successes, and returns the
// first n successes in completion order. If fewer than n branches succeed
// it re-raises the first observed failure.
func N(ctx context.Context, branches []Branch, n int) ([]interface{}, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out, _ := runAll(ctx, branches)
	var successes []interface{}
	var firstErr error
	total := 0
	for outcome := range out {
		total++
		if outcome.err != nil {
			if firstErr == nil {
				firstErr = outcome.err
			}
			continue
		}
		successes = append(successes, outcome.value)
		if len(successes) == n {
			cancel()
			drain(out)
			return successes, nil
		}
		if total == len(branches) {
			break
		}
	}
	if firstErr == nil {
		firstErr = &core.ParallelValidationFailed{Message: "fewer successes than required and no failure recorded"}
	}
	return nil, firstErr
}

// Collect gathers every branch and returns one Result per branch, in input
// order. It never propagates an individual branch's error.
func Collect(ctx context.Context, branches []Branch) []Result {
	out, _ := runAll(ctx, branches)
	results := make([]Result, len(branches))
	for outcome := range out {
		results[outcome.index] = Result{Value: outcome.value, Err: outcome.err}
	}
	return results
}

// drain consumes the remainder of a branch-outcome channel so cancelled
// goroutines' sends do not block forever once the caller stops reading.
func drain(out <-chan branchOutcome) {
	go func() {
		for range out {
		}
	}()
}
