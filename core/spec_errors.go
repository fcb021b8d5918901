package core

import "fmt"

// PreconditionFailed is raised before a provider call when a step's
// precondition predicate raises or returns false. It never mutates the
// cache or calls the provider.
type PreconditionFailed struct {
	Step      string
	Condition string
}

func (e *PreconditionFailed) Error() string {
	return fmt.Sprintf("precondition failed for step %q: %s", e.Step, e.Condition)
}

func (e *PreconditionFailed) Unwrap() error { return ErrPrecondition }

// PostconditionFailed is raised when the retry ceiling is exhausted with
// the final attempt ending at the postcheck stage.
type PostconditionFailed struct {
	Step         string
	Violations   []string
	RetryHistory []string
}

func (e *PostconditionFailed) Error() string {
	return fmt.Sprintf("postcondition failed for step %q: %v", e.Step, e.Violations)
}

func (e *PostconditionFailed) Unwrap() error { return ErrPostcondition }

// ParseFailure is raised when the retry ceiling is exhausted with the final
// attempt ending at the parse stage.
type ParseFailure struct {
	Step    string
	Raw     string
	Message string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("parse failed for step %q: %s", e.Step, e.Message)
}

func (e *ParseFailure) Unwrap() error { return ErrParse }

// BudgetExceeded is raised when a time or cost ceiling is hit.
type BudgetExceeded struct {
	Step   string
	MS     int64
	USD    float64
	Reason string // "time" or "cost"
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("budget exceeded for step %q (%s): ms=%d usd=%.4f", e.Step, e.Reason, e.MS, e.USD)
}

func (e *BudgetExceeded) Unwrap() error { return ErrBudget }

// ConvergenceFailure is raised when refine() hits its max-iteration ceiling
// without `until` returning true.
type ConvergenceFailure struct {
	Step    string
	Max     int
	History []interface{}
}

func (e *ConvergenceFailure) Error() string {
	return fmt.Sprintf("refine %q did not converge within %d iterations", e.Step, e.Max)
}

func (e *ConvergenceFailure) Unwrap() error { return ErrConvergence }

// ConsensusFailure is raised when a quorum step does not reach its
// agreement threshold.
type ConsensusFailure struct {
	Step    string
	N       int
	K       int
	Outputs []interface{}
}

func (e *ConsensusFailure) Error() string {
	return fmt.Sprintf("quorum %q failed to reach consensus: %d/%d required", e.Step, e.K, e.N)
}

func (e *ConsensusFailure) Unwrap() error { return ErrConsensus }

// ParallelValidationFailed is raised when an `all` validator rejects the
// result vector.
type ParallelValidationFailed struct {
	Message string
}

func (e *ParallelValidationFailed) Error() string {
	return fmt.Sprintf("parallel validation failed: %s", e.Message)
}

func (e *ParallelValidationFailed) Unwrap() error { return ErrValidation }

// HITLTimeout is raised when a review window elapses under the `raise`
// on-timeout policy.
type HITLTimeout struct {
	ReviewID string
}

func (e *HITLTimeout) Error() string {
	return fmt.Sprintf("human review %q timed out", e.ReviewID)
}

func (e *HITLTimeout) Unwrap() error { return ErrTimeout }

// StabilityAssertionError is raised in test mode when sampled outputs for a
// stable step disagree more than the configured threshold allows.
type StabilityAssertionError struct {
	Step      string
	Threshold float64
	Actual    float64
}

func (e *StabilityAssertionError) Error() string {
	return fmt.Sprintf("stability assertion failed for step %q: want >= %.2f agreement, got %.2f", e.Step, e.Threshold, e.Actual)
}

func (e *StabilityAssertionError) Unwrap() error { return ErrValidation }

// CompileError is raised for structural/static misuse detected before any
// provider call is possible (e.g. an opaque field name referenced from an
// intent or context string).
type CompileError struct {
	Location string
	Reason   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error at %s: %s", e.Location, e.Reason)
}

func (e *CompileError) Unwrap() error { return ErrCompile }

// ExecutionError is raised by the controller surface (§4.7); it is never
// propagated across the wire as a Go error — callers translate it into a
// structured response (schema_failed | ensure_failed | retries_exhausted).
type ExecutionError struct {
	FlowID  string
	StepID  string
	Code    string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s at step %s (flow %s): %s", e.Code, e.StepID, e.FlowID, e.Message)
}

// Controller error codes.
const (
	CodeSchemaFailed      = "schema_failed"
	CodeEnsureFailed      = "ensure_failed"
	CodeRetriesExhausted  = "retries_exhausted"
	CodeCycleDetected      = "cycle_detected"
	CodeUnknownReference   = "unknown_reference"
	CodeForbiddenPredicate = "forbidden_predicate"
)
