// Package step implements the step executor (§4.4), the core state
// machine of the runtime: precheck -> lookup -> compile -> call -> parse
// -> postcheck -> {success | retry | fail}.
package step

import (
	"github.com/stepforge/flowrt/contract"
)

// CachePolicy selects which store (if any) memoizes a step's output.
type CachePolicy string

const (
	CacheNone    CachePolicy = "none"
	CacheSession CachePolicy = "session"
	CacheGlobal  CachePolicy = "global"
)

// Precondition gates entry to a step. A Check that returns false or an
// error fails the step with PreconditionFailed before the cache or the
// provider are touched.
type Precondition struct {
	Label string
	Check func(inputs map[string]interface{}) (bool, error)
}

// Postcondition validates a step's parsed output. Every postcondition
// runs in declaration order and a false or erroring Check contributes one
// violation string; the executor does not short-circuit on the first
// failure so a retry's feedback reflects every violated condition.
type Postcondition struct {
	Label string
	Check func(output interface{}) (bool, error)
}

// ParamSpec declares one named step parameter and whether its bound value
// is opaque (kept out of the compiled prompt text, carried as a
// structured attachment instead).
type ParamSpec struct {
	Name   string
	Opaque bool
}

// Spec is the static declaration of a step: everything that does not vary
// per invocation.
type Spec struct {
	Name    string // qualified step name, used as the cache/trace identity
	Intent  string
	Context []string

	Params         []ParamSpec
	Preconditions  []Precondition
	Postconditions []Postcondition

	Contract           contract.Schema
	ContractDescriptor *contract.Descriptor // set by Register

	ModelID     string // empty defers to runtimeconfig's default_model
	Temperature *float32

	RetryCeiling int // total attempts allowed; <=0 treated as 1 (no retries)
	CachePolicy  CachePolicy

	// BudgetMS/BudgetUSD declare this step's own ceilings. Both nil means
	// the step inherits whatever budget is ambient (flow budget, or an
	// uncapped one if there is no flow) rather than owning its own.
	BudgetMS  *int64
	BudgetUSD *float64

	// Stable marks this step eligible for test-mode stability sampling.
	Stable bool
}

// isPrimitive reports whether the contract's top-level shape is not an
// object, in which case the wire schema presented to the provider is
// wrapped as {value: T} and unwrapped after parsing (§4.4 point 5).
func (s *Spec) isPrimitive() bool {
	return s.Contract.Kind != contract.KindObject
}

func (s *Spec) wireSchema() contract.Schema {
	if s.isPrimitive() {
		return contract.Object(contract.Field{Name: "value", Schema: s.Contract})
	}
	return s.Contract
}

func (s *Spec) retryCeiling() int {
	if s.RetryCeiling <= 0 {
		return 1
	}
	return s.RetryCeiling
}
