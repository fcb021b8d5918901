package controller

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"

	"github.com/stepforge/flowrt/contract"
)

func testRegistry(t *testing.T) *contract.Registry {
	t.Helper()
	r := contract.NewRegistry()
	_, err := r.Register("extraction", contract.Object(
		contract.Field{Name: "entities", Schema: contract.List(contract.String())},
	))
	require.NoError(t, err)
	_, err = r.Register("summary", contract.Object(
		contract.Field{Name: "text", Schema: contract.String()},
		contract.Field{Name: "confidence", Schema: contract.Float()},
	))
	require.NoError(t, err)
	return r
}

func testPlan() *PlanSpec {
	return &PlanSpec{
		Functions: []FunctionDef{
			{Name: "extract", Intent: "extract entities", OutputContract: "extraction", Ensure: "len(output.entities) > 0"},
			{Name: "summarize", Intent: "summarize entities", OutputContract: "summary", Ensure: "output.confidence >= 0.5", Retries: 1},
		},
		Flow: FlowDef{
			Name: "demo",
			Steps: []StepDef{
				{ID: "step1", Function: "extract", Inputs: map[string]string{"text": "$.input.text"}},
				{ID: "step2", Function: "summarize", Inputs: map[string]string{"entities": "$.steps.step1.output.entities"}},
			},
		},
	}
}

func TestControllerValidate(t *testing.T) {
	c := New(testRegistry(t), nil)
	result := c.Validate(testPlan())
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestControllerValidateDetectsUnknownFunction(t *testing.T) {
	plan := testPlan()
	plan.Flow.Steps[0].Function = "missing"
	c := New(testRegistry(t), nil)
	result := c.Validate(plan)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestControllerValidateDetectsCycle(t *testing.T) {
	plan := testPlan()
	plan.Flow.Steps[0].DependsOn = []string{"step2"}
	c := New(testRegistry(t), nil)
	result := c.Validate(plan)
	assert.False(t, result.Valid)
}

func TestControllerFullFlowHappyPath(t *testing.T) {
	c := New(testRegistry(t), nil)
	plan := testPlan()

	first, err := c.Plan(plan, "demo", map[string]interface{}{"text": "hello world"})
	require.NoError(t, err)
	assert.Equal(t, "step1", first.StepID)
	assert.Equal(t, 1, first.StepNumber)
	assert.Equal(t, 2, first.TotalSteps)
	assert.Equal(t, "hello world", first.Inputs["text"])

	outcome, err := c.StepDone(first.FlowID, "step1", map[string]interface{}{
		"entities": []interface{}{"alice", "bob"},
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.NextStep)
	assert.Equal(t, "step2", outcome.NextStep.StepID)
	assert.Equal(t, []interface{}{"alice", "bob"}, outcome.NextStep.Inputs["entities"])

	final, err := c.StepDone(first.FlowID, "step2", map[string]interface{}{
		"text":       "alice and bob",
		"confidence": 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, "complete", final.Status)

	records := c.Audit(first.FlowID)
	assert.Len(t, records, 2)
}

func TestControllerEnsureFailureRetriesThenFails(t *testing.T) {
	c := New(testRegistry(t), nil)
	plan := testPlan()

	first, err := c.Plan(plan, "demo", map[string]interface{}{"text": "hello"})
	require.NoError(t, err)

	outcome, err := c.StepDone(first.FlowID, "step1", map[string]interface{}{
		"entities": []interface{}{"x"},
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.NextStep)

	// low confidence fails ensure; one retry configured
	retryOutcome, err := c.StepDone(first.FlowID, "step2", map[string]interface{}{
		"text": "x", "confidence": 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "ensure_failed", retryOutcome.Status)
	assert.Equal(t, 0, retryOutcome.RetriesRemaining)
	require.NotNil(t, retryOutcome.NextStep)
	assert.Equal(t, "step2", retryOutcome.NextStep.StepID)

	finalOutcome, err := c.StepDone(first.FlowID, "step2", map[string]interface{}{
		"text": "x", "confidence": 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "ensure_failed", finalOutcome.Status)
	assert.Nil(t, finalOutcome.NextStep)
}

func TestControllerSchemaFailure(t *testing.T) {
	c := New(testRegistry(t), nil)
	plan := testPlan()
	plan.Functions[1].Retries = 0

	first, err := c.Plan(plan, "demo", map[string]interface{}{"text": "hello"})
	require.NoError(t, err)
	_, err = c.StepDone(first.FlowID, "step1", map[string]interface{}{"entities": []interface{}{"x"}})
	require.NoError(t, err)

	outcome, err := c.StepDone(first.FlowID, "step2", map[string]interface{}{"text": "only text, no confidence"})
	require.NoError(t, err)
	assert.Equal(t, "schema_failed", outcome.Status)
}
