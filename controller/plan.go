// Package controller implements the declarative flow controller (§4.7): a
// plan of functions and an ordered step DAG, driven from outside the
// process via four wire operations (validate, plan, step_done, audit). The
// controller itself never calls a provider; it hands the driver a step
// descriptor, the driver executes it by whatever means it likes, and
// reports the result back through step_done.
package controller

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stepforge/flowrt/contract"
)

// FunctionDef declares one reusable function a plan's steps may invoke.
type FunctionDef struct {
	Name           string `yaml:"name"`
	Intent         string `yaml:"intent"`
	Mode           string `yaml:"mode"` // e.g. "llm", "tool"; defaults to "llm"
	OutputContract string `yaml:"output_contract"`
	Ensure         string `yaml:"ensure"`
	Retries        int    `yaml:"retries"`
}

// StepDef is one node in the plan's flow: a function invocation bound to
// resolved inputs, with explicit dependency edges in addition to whatever
// implicit $.steps.<id>... references its inputs carry.
type StepDef struct {
	ID        string            `yaml:"id"`
	Function  string            `yaml:"function"`
	DependsOn []string          `yaml:"depends_on"`
	Inputs    map[string]string `yaml:"inputs"`
}

// FlowDef is the named, ordered sequence of steps a plan executes.
type FlowDef struct {
	Name  string    `yaml:"name"`
	Steps []StepDef `yaml:"steps"`
}

// PlanSpec is the full declarative plan: its function catalog and its flow.
type PlanSpec struct {
	Functions []FunctionDef `yaml:"functions"`
	Flow      FlowDef       `yaml:"flow"`
}

// ParsePlan decodes a YAML-encoded plan document.
func ParsePlan(data []byte) (*PlanSpec, error) {
	var spec PlanSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("controller: parsing plan: %w", err)
	}
	return &spec, nil
}

func (p *PlanSpec) function(name string) (*FunctionDef, bool) {
	for i := range p.Functions {
		if p.Functions[i].Name == name {
			return &p.Functions[i], true
		}
	}
	return nil, false
}

func (p *PlanSpec) step(id string) (*StepDef, bool) {
	for i := range p.Flow.Steps {
		if p.Flow.Steps[i].ID == id {
			return &p.Flow.Steps[i], true
		}
	}
	return nil, false
}

// buildDAG constructs the dependency graph from explicit depends_on edges
// and implicit $.steps.<id>... references found in each step's inputs.
func (p *PlanSpec) buildDAG() *dag {
	d := newDAG()
	for _, s := range p.Flow.Steps {
		d.addNode(s.ID)
	}
	for _, s := range p.Flow.Steps {
		for _, dep := range s.DependsOn {
			d.addEdge(dep, s.ID)
		}
		for _, dep := range extractStepRefs(s.Inputs) {
			d.addEdge(dep, s.ID)
		}
	}
	return d
}

// Validate checks the plan for structural soundness: every step names a
// known function, every output contract a function names is registered
// (when a registry is given), every ensure predicate compiles, every
// $.steps input reference names a known step (and a known field, where the
// target's contract is registered), and the step graph is acyclic.
// $.input references are not checked here. It never mutates the
// plan or raises; the wire surface translates a non-empty errs into a
// {valid: false, errors: [...]} response.
func (p *PlanSpec) Validate(registry *contract.Registry) (bool, []string) {
	var errs []string

	if p.Flow.Name == "" {
		errs = append(errs, "flow.name is required")
	}
	if len(p.Flow.Steps) == 0 {
		errs = append(errs, "flow.steps must be non-empty")
	}

	seen := make(map[string]bool, len(p.Flow.Steps))
	for _, s := range p.Flow.Steps {
		if s.ID == "" {
			errs = append(errs, "step with empty id")
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = true

		fn, ok := p.function(s.Function)
		if !ok {
			errs = append(errs, fmt.Sprintf("step %q references unknown function %q", s.ID, s.Function))
			continue
		}
		if fn.OutputContract != "" {
			if registry != nil {
				if _, ok := registry.Lookup(fn.OutputContract); !ok {
					errs = append(errs, fmt.Sprintf("function %q references unregistered contract %q", fn.Name, fn.OutputContract))
				}
			}
		}
		if fn.Ensure != "" {
			if _, err := Compile(fn.Ensure); err != nil {
				errs = append(errs, fmt.Sprintf("function %q ensure predicate: %s", fn.Name, err.Error()))
			}
		}
		for _, dep := range s.DependsOn {
			if _, ok := p.step(dep); !ok {
				errs = append(errs, fmt.Sprintf("step %q depends_on unknown step %q", s.ID, dep))
			}
		}
		for key, val := range s.Inputs {
			ref, ok := parseRef(val)
			if !ok || ref.kind != refKindSteps {
				continue
			}
			target, ok := p.step(ref.stepID)
			if !ok {
				errs = append(errs, fmt.Sprintf("step %q input %q references unknown step %q", s.ID, key, ref.stepID))
				continue
			}
			if targetFn, ok := p.function(target.Function); ok && targetFn.OutputContract != "" && registry != nil {
				if desc, ok := registry.Lookup(targetFn.OutputContract); ok && ref.field != "" {
					if !hasField(desc.Schema, ref.field) {
						errs = append(errs, fmt.Sprintf("step %q input %q references unknown field %q on step %q's output", s.ID, key, ref.field, ref.stepID))
					}
				}
			}
		}
	}

	d := p.buildDAG()
	if cyc := d.detectCycle(); cyc != nil {
		errs = append(errs, fmt.Sprintf("cycle detected among steps: %v", cyc))
	}

	return len(errs) == 0, errs
}

func hasField(s contract.Schema, name string) bool {
	if s.Kind != contract.KindObject {
		return false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
