package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpTelemetryIsSafeToUse(t *testing.T) {
	var tel Telemetry = NoOpTelemetry{}
	ctx, span := tel.StartSpan(context.Background(), "step.execute")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.SetAttribute("step", "extract")
		span.RecordError(errors.New("boom"))
		span.End()
	})
	assert.NotPanics(t, func() {
		tel.RecordMetric("steps.total", 1, map[string]string{"step": "extract"})
	})
}
