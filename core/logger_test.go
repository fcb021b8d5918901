package core

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLogger("flowrt-test", "info", "json", &buf)

	logger.Info("step started", map[string]interface{}{"step": "extract"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "flowrt-test", entry["service"])
	assert.Equal(t, "runtime", entry["component"])
	assert.Equal(t, "step started", entry["message"])
	assert.Equal(t, "extract", entry["step"])
}

func TestProductionLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLogger("svc", "warn", "json", &buf)

	logger.Debug("should not appear", nil)
	logger.Info("should not appear either", nil)
	assert.Empty(t, buf.String())

	logger.Warn("this one shows", nil)
	assert.Contains(t, buf.String(), "this one shows")
}

func TestProductionLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLogger("svc", "info", "json", &buf)
	child := logger.WithComponent("runtime/step")

	child.Info("hi", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "runtime/step", entry["component"])
}

func TestProductionLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLogger("svc", "info", "text", &buf)
	logger.Info("hello", map[string]interface{}{"k": "v"})
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestProductionLoggerContextBaggage(t *testing.T) {
	SetContextBaggageFunc(func(ctx context.Context) map[string]string {
		return map[string]string{"flow_id": "abc123"}
	})
	defer SetContextBaggageFunc(nil)

	var buf bytes.Buffer
	logger := NewProductionLogger("svc", "info", "json", &buf)
	logger.InfoWithContext(context.Background(), "inside flow", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc123", entry["trace.flow_id"])
}

func TestNoOpLoggerDoesNothing(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.NotPanics(t, func() {
		l.Info("x", nil)
		l.Warn("x", nil)
		l.Error("x", nil)
		l.Debug("x", nil)
		l.InfoWithContext(context.Background(), "x", nil)
	})
}

func TestProductionLoggerLevelOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProductionLogger("svc", "error", "text", &buf)
	logger.Warn("hidden", nil)
	logger.Error("shown", nil)
	lines := strings.TrimSpace(buf.String())
	assert.Equal(t, 1, strings.Count(lines, "\n")+1)
	assert.Contains(t, lines, "shown")
}
