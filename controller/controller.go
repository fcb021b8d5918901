package controller

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stepforge/flowrt/contract"
	"github.com/stepforge/flowrt/core"
	"github.com/stepforge/flowrt/trace"
)

// StepDescriptor is the controller's hand-off to the driver: everything it
// needs to execute one step, with inputs already resolved against the
// flow's initial inputs and prior steps' outputs.
type StepDescriptor struct {
	FlowID           string                 `json:"flow_id"`
	StepNumber       int                    `json:"step_number"`
	TotalSteps       int                    `json:"total_steps"`
	StepID           string                 `json:"step_id"`
	Function         string                 `json:"function"`
	Mode             string                 `json:"mode"`
	Intent           string                 `json:"intent"`
	Inputs           map[string]interface{} `json:"inputs"`
	OutputContract   string                 `json:"output_contract"`
	OutputFields     []string               `json:"output_fields"`
	Ensure           string                 `json:"ensure,omitempty"`
	RetriesRemaining int                    `json:"retries_remaining"`
}

// StepOutcome is step_done's response: either the next step to run, or a
// terminal status (ensure_failed, schema_failed, or complete).
type StepOutcome struct {
	NextStep         *StepDescriptor `json:"next_step,omitempty"`
	Status           string          `json:"status,omitempty"`
	Violations       []string        `json:"violations,omitempty"`
	RetriesRemaining int             `json:"retries_remaining,omitempty"`
	Output           interface{}     `json:"output,omitempty"`
}

// ValidationResult is validate(spec)'s response.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// flowState tracks one in-flight plan execution.
type flowState struct {
	mu         sync.Mutex
	spec       *PlanSpec
	order      []string
	cursor     int
	inputs     map[string]interface{}
	outputs    map[string]interface{}
	retriesLeft map[string]int
}

// Controller runs declarative plans (§4.7): it never calls a provider
// itself, instead handing the driver one resolved step descriptor at a
// time and advancing the plan's cursor once the driver reports a result.
type Controller struct {
	mu       sync.Mutex
	registry *contract.Registry
	trace    *trace.Log
	flows    map[string]*flowState
}

// New creates a Controller. registry resolves function output contracts by
// name; traceLog, if non-nil, receives one record per completed step.
func New(registry *contract.Registry, traceLog *trace.Log) *Controller {
	if traceLog == nil {
		traceLog = trace.New(nil)
	}
	return &Controller{
		registry: registry,
		trace:    traceLog,
		flows:    make(map[string]*flowState),
	}
}

// Validate checks a plan's structural soundness without running it.
func (c *Controller) Validate(spec *PlanSpec) ValidationResult {
	valid, errs := spec.Validate(c.registry)
	return ValidationResult{Valid: valid, Errors: errs}
}

// Plan accepts spec, assigns it a flow id, computes the step execution
// order, and returns the first step descriptor. It fails closed: an
// invalid plan or a cyclic step graph never starts a flow.
func (c *Controller) Plan(spec *PlanSpec, flowName string, inputs map[string]interface{}) (*StepDescriptor, error) {
	if valid, errs := spec.Validate(c.registry); !valid {
		return nil, &core.ExecutionError{
			StepID:  "",
			Code:    core.CodeSchemaFailed,
			Message: fmt.Sprintf("plan %q failed validation: %v", flowName, errs),
		}
	}

	order, err := spec.buildDAG().topologicalOrder()
	if err != nil {
		return nil, &core.ExecutionError{Code: core.CodeCycleDetected, Message: err.Error()}
	}

	flowID := uuid.NewString()
	fs := &flowState{
		spec:        spec,
		order:       order,
		cursor:      0,
		inputs:      inputs,
		outputs:     make(map[string]interface{}),
		retriesLeft: make(map[string]int),
	}
	for _, s := range spec.Flow.Steps {
		if fn, ok := spec.function(s.Function); ok {
			fs.retriesLeft[s.ID] = fn.Retries
		}
	}

	c.mu.Lock()
	c.flows[flowID] = fs
	c.mu.Unlock()

	return c.describeStep(flowID, fs)
}

// StepDone records the driver's result for the flow's current step,
// evaluates its ensure predicate and (if registered) its output contract,
// and returns either the next step descriptor or a terminal outcome.
func (c *Controller) StepDone(flowID, stepID string, result interface{}) (*StepOutcome, error) {
	c.mu.Lock()
	fs, ok := c.flows[flowID]
	c.mu.Unlock()
	if !ok {
		return nil, &core.ExecutionError{FlowID: flowID, StepID: stepID, Code: core.CodeUnknownReference, Message: "unknown flow id"}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cursor >= len(fs.order) {
		return nil, &core.ExecutionError{FlowID: flowID, StepID: stepID, Code: core.CodeUnknownReference, Message: "flow already complete"}
	}
	expected := fs.order[fs.cursor]
	if expected != stepID {
		return nil, &core.ExecutionError{
			FlowID: flowID, StepID: stepID, Code: core.CodeUnknownReference,
			Message: fmt.Sprintf("expected result for step %q, got %q", expected, stepID),
		}
	}

	step, _ := fs.spec.step(stepID)
	fn, _ := fs.spec.function(step.Function)

	if fn.OutputContract != "" && c.registry != nil {
		if desc, ok := c.registry.Lookup(fn.OutputContract); ok {
			if err := contract.Validate(desc.Schema, result); err != nil {
				return c.retryOrFail(fs, flowID, stepID, fn, "schema_failed", []string{err.Error()})
			}
		}
	}

	if fn.Ensure != "" {
		expr, err := Compile(fn.Ensure)
		if err != nil {
			return nil, &core.ExecutionError{FlowID: flowID, StepID: stepID, Code: core.CodeForbiddenPredicate, Message: err.Error()}
		}
		ok, err := expr.Eval(map[string]interface{}{"output": result})
		if err != nil || !ok {
			reason := "predicate evaluated false"
			if err != nil {
				reason = err.Error()
			}
			return c.retryOrFail(fs, flowID, stepID, fn, "ensure_failed", []string{reason})
		}
	}

	fs.outputs[stepID] = result
	fs.cursor++

	c.trace.Append(trace.Record{
		StepQualname: fmt.Sprintf("%s.%s", fs.spec.Flow.Name, stepID),
		Output:       result,
		FlowID:       flowID,
		Attempts:     1,
	})

	if fs.cursor >= len(fs.order) {
		return &StepOutcome{Status: "complete", Output: result}, nil
	}

	next, err := c.describeStep(flowID, fs)
	if err != nil {
		return nil, err
	}
	return &StepOutcome{NextStep: next}, nil
}

// retryOrFail consumes one retry for stepID; if retries remain it returns a
// descriptor for the same step to re-run, otherwise a terminal failure
// outcome.
func (c *Controller) retryOrFail(fs *flowState, flowID, stepID string, fn *FunctionDef, status string, violations []string) (*StepOutcome, error) {
	left := fs.retriesLeft[stepID]
	if left > 0 {
		fs.retriesLeft[stepID] = left - 1
		desc, err := c.describeStep(flowID, fs)
		if err != nil {
			return nil, err
		}
		return &StepOutcome{NextStep: desc, Status: status, Violations: violations, RetriesRemaining: left - 1}, nil
	}
	return &StepOutcome{Status: status, Violations: violations, RetriesRemaining: 0}, nil
}

// Audit returns the trace snapshot for flowID: every record recorded so
// far whose FlowID matches.
func (c *Controller) Audit(flowID string) []trace.Record {
	all := c.trace.Records()
	out := make([]trace.Record, 0, len(all))
	for _, r := range all {
		if r.FlowID == flowID {
			out = append(out, r)
		}
	}
	return out
}

// describeStep resolves the current cursor step's inputs and builds its
// descriptor.
func (c *Controller) describeStep(flowID string, fs *flowState) (*StepDescriptor, error) {
	stepID := fs.order[fs.cursor]
	step, _ := fs.spec.step(stepID)
	fn, _ := fs.spec.function(step.Function)

	resolved, err := resolveInputs(flowID, stepID, step.Inputs, fs.inputs, fs.outputs)
	if err != nil {
		return nil, err
	}

	mode := fn.Mode
	if mode == "" {
		mode = "llm"
	}

	var fields []string
	if fn.OutputContract != "" && c.registry != nil {
		if desc, ok := c.registry.Lookup(fn.OutputContract); ok {
			for _, f := range desc.Schema.Fields {
				fields = append(fields, f.Name)
			}
		}
	}

	return &StepDescriptor{
		FlowID:           flowID,
		StepNumber:       fs.cursor + 1,
		TotalSteps:       len(fs.order),
		StepID:           stepID,
		Function:         fn.Name,
		Mode:             mode,
		Intent:           fn.Intent,
		Inputs:           resolved,
		OutputContract:   fn.OutputContract,
		OutputFields:     fields,
		Ensure:           fn.Ensure,
		RetriesRemaining: fs.retriesLeft[stepID],
	}, nil
}
