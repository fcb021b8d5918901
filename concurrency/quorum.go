package concurrency

import (
	"context"
	"fmt"
	"reflect"

	"github.com/stepforge/flowrt/core"
)

// QuorumSpec declares a quorum composition's shape: N independent branches,
// partitioned by the string rendering of their AgreeOn field (or the whole
// value, if AgreeOn is empty), with a minimum partition size K.
type QuorumSpec struct {
	N       int
	AgreeOn string
	K       int
}

// Quorum fires N independent branches concurrently, partitions the
// successes by the rendered value of their agree-on field, and returns the
// highest-confidence member of the largest partition if it reaches size K.
func Quorum(ctx context.Context, branches []Branch, spec QuorumSpec, stepName string) (interface{}, error) {
	results := Collect(ctx, branches)

	var successes []interface{}
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		successes = append(successes, r.Value)
	}

	if len(successes) < spec.K {
		if firstErr != nil {
			return nil, fmt.Errorf("quorum %q: fewer than %d successes: %w", stepName, spec.K, firstErr)
		}
		return nil, &core.ConsensusFailure{Step: stepName, N: spec.N, K: spec.K, Outputs: allOutputs(results)}
	}

	partitions := make(map[string][]interface{})
	var order []string
	for _, v := range successes {
		key := agreeKey(v, spec.AgreeOn)
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], v)
	}

	var bestKey string
	var bestSize int
	for _, key := range order {
		if len(partitions[key]) > bestSize {
			bestKey, bestSize = key, len(partitions[key])
		}
	}

	if bestSize < spec.K {
		return nil, &core.ConsensusFailure{Step: stepName, N: spec.N, K: spec.K, Outputs: allOutputs(results)}
	}

	return pickByConfidence(partitions[bestKey]), nil
}

func allOutputs(results []Result) []interface{} {
	out := make([]interface{}, len(results))
	for i, r := range results {
		if r.Err == nil {
			out[i] = r.Value
		} else {
			out[i] = r.Err.Error()
		}
	}
	return out
}

// agreeKey renders the value under comparison: the named field if field is
// non-empty and the value is a map or struct carrying it, else the value's
// own string rendering.
func agreeKey(v interface{}, field string) string {
	if field == "" {
		return fmt.Sprintf("%v", v)
	}
	if m, ok := v.(map[string]interface{}); ok {
		if fv, present := m[field]; present {
			return fmt.Sprintf("%v", fv)
		}
		return fmt.Sprintf("%v", v)
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return fmt.Sprintf("%v", v)
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		fv := rv.FieldByName(field)
		if fv.IsValid() {
			return fmt.Sprintf("%v", fv.Interface())
		}
	}
	return fmt.Sprintf("%v", v)
}

// pickByConfidence returns the partition member with the highest
// "confidence" attribute if the shape carries one, else the first member.
func pickByConfidence(members []interface{}) interface{} {
	var best interface{}
	var bestConfidence float64
	found := false
	for _, m := range members {
		c, ok := confidenceOf(m)
		if !ok {
			continue
		}
		if !found || c > bestConfidence {
			best, bestConfidence, found = m, c, true
		}
	}
	if found {
		return best
	}
	return members[0]
}

func confidenceOf(v interface{}) (float64, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		if fv, present := m["confidence"]; present {
			return toFloat(fv)
		}
		return 0, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return 0, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return 0, false
	}
	fv := rv.FieldByName("Confidence")
	if !fv.IsValid() {
		return 0, false
	}
	return toFloat(fv.Interface())
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
