package controller

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprAttributeAndComparison(t *testing.T) {
	e, err := Compile(`output.confidence >= 0.8`)
	require.NoError(t, err)

	ok, err := e.Eval(map[string]interface{}{"output": map[string]interface{}{"confidence": 0.9}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(map[string]interface{}{"output": map[string]interface{}{"confidence": 0.5}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExprLenBuiltin(t *testing.T) {
	e, err := Compile(`len(output) > 0`)
	require.NoError(t, err)

	ok, err := e.Eval(map[string]interface{}{"output": []interface{}{"a"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(map[string]interface{}{"output": []interface{}{}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExprAndOrNot(t *testing.T) {
	e, err := Compile(`output.a == "x" and not output.b == "y"`)
	require.NoError(t, err)

	ok, err := e.Eval(map[string]interface{}{"output": map[string]interface{}{"a": "x", "b": "z"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(map[string]interface{}{"output": map[string]interface{}{"a": "x", "b": "y"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExprRejectsDunder(t *testing.T) {
	_, err := Compile(`output.__class__ == "x"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dunder")
}

func TestExprFileBuiltins(t *testing.T) {
	e, err := Compile(`file_exists(output)`)
	require.NoError(t, err)

	ok, err := e.Eval(map[string]interface{}{"output": "/nonexistent/path/for/sure"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExprUnknownFunctionRejected(t *testing.T) {
	e, err := Compile(`eval(output)`)
	require.NoError(t, err)
	_, err = e.Eval(map[string]interface{}{"output": "x"})
	require.Error(t, err)
}

func TestExprFileContainsFindsSubstring(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	e, err := Compile(`file_contains(output.path, output.needle)`)
	require.NoError(t, err)

	ok, err := e.Eval(map[string]interface{}{"output": map[string]interface{}{"path": path, "needle": "world"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(map[string]interface{}{"output": map[string]interface{}{"path": path, "needle": "nope"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExprFileContainsToleratesBinaryContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binary.dat")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x01, 'h', 'i'}, 0o644))

	e, err := Compile(`file_contains(output.path, output.needle)`)
	require.NoError(t, err)

	ok, err := e.Eval(map[string]interface{}{"output": map[string]interface{}{"path": path, "needle": "hi"}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExprFileContainsRejectsOversizedFileWithoutError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	data := []byte(strings.Repeat("a", maxFileContainsBytes+1))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	e, err := Compile(`file_contains(output.path, output.needle)`)
	require.NoError(t, err)

	ok, err := e.Eval(map[string]interface{}{"output": map[string]interface{}{"path": path, "needle": "a"}})
	require.NoError(t, err, "oversized files must be reported as false, never raised as an error")
	assert.False(t, ok)
}

func TestExprFileContainsMissingFileReturnsFalse(t *testing.T) {
	e, err := Compile(`file_contains(output.path, output.needle)`)
	require.NoError(t, err)

	ok, err := e.Eval(map[string]interface{}{"output": map[string]interface{}{"path": "/nonexistent/path", "needle": "a"}})
	require.NoError(t, err)
	assert.False(t, ok)
}
