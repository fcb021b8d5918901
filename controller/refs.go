package controller

import (
	"fmt"
	"strings"

	"github.com/stepforge/flowrt/core"
)

type refKind int

const (
	refKindNone refKind = iota
	refKindInput
	refKindSteps
)

type ref struct {
	kind   refKind
	field  string // refKindInput: the flow input name
	stepID string // refKindSteps: the step id
}

// parseRef recognizes the two reference forms a step input binding may
// take: "$.input.<name>" and "$.steps.<id>.output[.<field>]". Anything
// else is a literal value, not a reference.
func parseRef(s string) (ref, bool) {
	if !strings.HasPrefix(s, "$.") {
		return ref{}, false
	}
	rest := s[2:]
	switch {
	case strings.HasPrefix(rest, "input."):
		name := strings.TrimPrefix(rest, "input.")
		if name == "" {
			return ref{}, false
		}
		return ref{kind: refKindInput, field: name}, true
	case strings.HasPrefix(rest, "steps."):
		rest = strings.TrimPrefix(rest, "steps.")
		parts := strings.SplitN(rest, ".", 3)
		if len(parts) < 2 || parts[1] != "output" {
			return ref{}, false
		}
		r := ref{kind: refKindSteps, stepID: parts[0]}
		if len(parts) == 3 {
			r.field = parts[2]
		}
		return r, true
	default:
		return ref{}, false
	}
}

// extractStepRefs returns the unique set of step ids referenced by any
// $.steps.<id>... binding in inputs, in first-seen order.
func extractStepRefs(inputs map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range inputs {
		r, ok := parseRef(v)
		if !ok || r.kind != refKindSteps {
			continue
		}
		if !seen[r.stepID] {
			seen[r.stepID] = true
			out = append(out, r.stepID)
		}
	}
	return out
}

// resolveInputs resolves a step's input bindings against the flow's
// initial inputs and the already-completed steps' outputs. A binding that
// isn't a recognized reference form is passed through as a literal string.
func resolveInputs(flowID, stepID string, inputs map[string]string, flowInputs map[string]interface{}, outputs map[string]interface{}) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(inputs))
	for key, raw := range inputs {
		r, ok := parseRef(raw)
		if !ok {
			resolved[key] = raw
			continue
		}
		switch r.kind {
		case refKindInput:
			v, present := flowInputs[r.field]
			if !present {
				return nil, &core.ExecutionError{
					FlowID: flowID, StepID: stepID, Code: core.CodeUnknownReference,
					Message: fmt.Sprintf("input %q references unknown flow input %q", key, r.field),
				}
			}
			resolved[key] = v
		case refKindSteps:
			out, present := outputs[r.stepID]
			if !present {
				return nil, &core.ExecutionError{
					FlowID: flowID, StepID: stepID, Code: core.CodeUnknownReference,
					Message: fmt.Sprintf("input %q references step %q, which has not completed", key, r.stepID),
				}
			}
			if r.field == "" {
				resolved[key] = out
				continue
			}
			field, err := attr(out, r.field)
			if err != nil {
				return nil, &core.ExecutionError{
					FlowID: flowID, StepID: stepID, Code: core.CodeUnknownReference,
					Message: fmt.Sprintf("input %q: %s", key, err.Error()),
				}
			}
			resolved[key] = field
		}
	}
	return resolved, nil
}
