package step

import (
	"context"
	"fmt"
	"strings"

	"github.com/stepforge/flowrt/core"
	"github.com/stepforge/flowrt/provider"
	"github.com/stepforge/flowrt/runtimeconfig"
)

const stabilityThreshold = 0.9

// checkStability implements the test-time-only stability assertion
// (§4.4): when test mode is on and the spec opts in, it collects sample_n
// samples (the primary output plus sample_n-1 re-runs of the
// call/parse/postcheck chain) and requires the modal string rendering to
// cover at least stabilityThreshold of the samples. In
// production mode (or for specs that did not opt in) it is a no-op.
func (e *Executor) checkStability(ctx context.Context, spec *Spec, inputs map[string]interface{}, client provider.Client, primary interface{}) error {
	cfg := runtimeconfig.Get()
	if !spec.Stable || !cfg.TestMode {
		return nil
	}
	n := cfg.SampleN
	if n < 1 {
		n = 1
	}

	samples := make([]string, 0, n)
	samples = append(samples, renderValue(primary))
	for i := 1; i < n; i++ {
		v, err := e.runSample(ctx, spec, inputs, client)
		if err != nil {
			samples = append(samples, fmt.Sprintf("<error: %s>", err.Error()))
			continue
		}
		samples = append(samples, renderValue(v))
	}

	_, count := modeOf(samples)
	actual := float64(count) / float64(len(samples))
	if actual < stabilityThreshold {
		return &core.StabilityAssertionError{Step: spec.Name, Threshold: stabilityThreshold, Actual: actual}
	}
	return nil
}

// runSample executes one independent call/parse/postcheck attempt with no
// retry feedback, for stability sampling.
func (e *Executor) runSample(ctx context.Context, spec *Spec, inputs map[string]interface{}, client provider.Client) (interface{}, error) {
	compiled, err := e.compile(spec, inputs, nil, client)
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, provider.Request{
		ModelID:     e.effectiveModel(spec),
		Messages:    compiled.Messages,
		Tool:        buildToolDescriptor(spec),
		ForcedName:  spec.Name,
		Temperature: spec.Temperature,
	})
	if err != nil {
		return nil, err
	}
	output, _, err := e.parse(spec, resp)
	if err != nil {
		return nil, err
	}
	if violations := e.postcheck(spec, output); len(violations) > 0 {
		return nil, fmt.Errorf("postcondition violated: %s", strings.Join(violations, "; "))
	}
	return output, nil
}

func renderValue(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

func modeOf(samples []string) (string, int) {
	counts := make(map[string]int, len(samples))
	for _, s := range samples {
		counts[s]++
	}
	var best string
	var bestCount int
	for _, s := range samples {
		if counts[s] > bestCount {
			best, bestCount = s, counts[s]
		}
	}
	return best, bestCount
}
