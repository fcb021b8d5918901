package concurrency

import (
	"context"

	"github.com/stepforge/flowrt/core"
)

// Invoke runs one refine iteration with the accumulated feedback lines
// appended to the wrapped step's context.
type Invoke func(ctx context.Context, extraContext []string) (interface{}, error)

// Until judges whether an iteration's output is acceptable.
type Until func(output interface{}) (bool, error)

// Feedback renders an unacceptable output into the context line appended
// before the next iteration.
type Feedback func(output interface{}) (string, error)

// Refine wraps a step with (until, feedback, maxIterations). Each
// iteration appends the previous output's feedback string to the step's
// context and re-invokes; until returning true yields that output. Neither
// until nor feedback may themselves invoke an LLM-backed step — this is a
// structural rule the caller is responsible for; Refine does not detect
// violations.
func Refine(ctx context.Context, invoke Invoke, until Until, feedback Feedback, maxIterations int, stepName string) (interface{}, error) {
	var extraContext []string
	history := make([]interface{}, 0, maxIterations)

	for i := 0; i < maxIterations; i++ {
		output, err := invoke(ctx, extraContext)
		if err != nil {
			return nil, err
		}
		history = append(history, output)

		ok, err := until(output)
		if err != nil {
			return nil, err
		}
		if ok {
			return output, nil
		}

		line, err := feedback(output)
		if err != nil {
			return nil, err
		}
		extraContext = append(extraContext, line)
	}

	return nil, &core.ConvergenceFailure{Step: stepName, Max: maxIterations, History: history}
}
