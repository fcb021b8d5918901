package runtimeconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepforge/flowrt/provider"
)

func TestDefaultConfigBaseline(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gpt-4o", cfg.DefaultModel)
	assert.False(t, cfg.TestMode)
	assert.Equal(t, 1, cfg.SampleN)
	assert.Nil(t, cfg.ProviderClient)
	assert.Nil(t, cfg.ReviewSink)
}

func TestLoadFromEnvOverlaysSetVars(t *testing.T) {
	t.Setenv("FLOWRT_DEFAULT_MODEL", "gpt-4o-mini")
	t.Setenv("FLOWRT_TEST_MODE", "true")
	t.Setenv("FLOWRT_SAMPLE_N", "5")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel)
	assert.True(t, cfg.TestMode)
	assert.Equal(t, 5, cfg.SampleN)
}

func TestLoadFromEnvLeavesUnsetVarsAlone(t *testing.T) {
	os.Unsetenv("FLOWRT_DEFAULT_MODEL")
	os.Unsetenv("FLOWRT_TEST_MODE")
	os.Unsetenv("FLOWRT_SAMPLE_N")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, "gpt-4o", cfg.DefaultModel)
}

func TestLoadFromEnvWrapsParseErrors(t *testing.T) {
	t.Setenv("FLOWRT_TEST_MODE", "not-a-bool")
	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromEnvWrapsSampleNParseError(t *testing.T) {
	t.Setenv("FLOWRT_SAMPLE_N", "not-a-number")
	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromYAMLOverlaysFields(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromYAML([]byte("default_model: gpt-4-turbo\ntest_mode: true\nsample_n: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4-turbo", cfg.DefaultModel)
	assert.True(t, cfg.TestMode)
	assert.Equal(t, 3, cfg.SampleN)
}

func TestLoadFromYAMLRejectsMalformedDocument(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromYAML([]byte("not: [valid: yaml"))
	assert.Error(t, err)
}

func TestWithSampleNValidatesMinimum(t *testing.T) {
	_, err := NewConfig(WithSampleN(0))
	assert.Error(t, err)

	cfg, err := NewConfig(WithSampleN(3))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.SampleN)
}

func TestWithProviderClientSetsClient(t *testing.T) {
	client := provider.NewMockClient(0)
	cfg, err := NewConfig(WithProviderClient(client))
	require.NoError(t, err)
	assert.Same(t, client, cfg.ProviderClient)
}

func TestWithDefaultModelAndTestMode(t *testing.T) {
	cfg, err := NewConfig(WithDefaultModel("custom-model"), WithTestMode(true))
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.DefaultModel)
	assert.True(t, cfg.TestMode)
}

func TestNewConfigLayersDefaultsEnvThenOpts(t *testing.T) {
	t.Setenv("FLOWRT_DEFAULT_MODEL", "env-model")
	cfg, err := NewConfig(WithDefaultModel("opt-model"))
	require.NoError(t, err)
	assert.Equal(t, "opt-model", cfg.DefaultModel, "opts must take priority over env")
}

func TestWithYAMLFileLoadsFromDisk(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("default_model: file-model\n"), 0o644))

	cfg, err := NewConfig(WithYAMLFile(path))
	require.NoError(t, err)
	assert.Equal(t, "file-model", cfg.DefaultModel)
}

func TestWithYAMLFileErrorsOnMissingFile(t *testing.T) {
	_, err := NewConfig(WithYAMLFile("/nonexistent/path.yaml"))
	assert.Error(t, err)
}

func TestConfigureAndGetRoundTrip(t *testing.T) {
	original := Get()
	defer Configure(original)

	cfg := DefaultConfig()
	cfg.DefaultModel = "configured-model"
	Configure(cfg)

	assert.Equal(t, "configured-model", Get().DefaultModel)
}

func TestGetNeverReturnsNil(t *testing.T) {
	assert.NotNil(t, Get())
}
