// Package runtimeconfig holds the global, process-wide, late-bound
// configuration named in §6: the provider client, review sink, tracer
// hook, default model, test mode flag, and stability sample count that
// every step invocation reads implicitly unless overridden at the call
// site.
package runtimeconfig

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/stepforge/flowrt/core"
	"github.com/stepforge/flowrt/hitl"
	"github.com/stepforge/flowrt/provider"
	"github.com/stepforge/flowrt/trace"
)

// Config is the late-bound, process-wide surface. A step invocation that
// does not explicitly pass a provider client, review sink, or model id
// falls back to whatever is configured here at call time — configuration
// is read fresh on every access, not captured at step-declaration time.
type Config struct {
	ProviderClient provider.Client
	ReviewSink     hitl.ReviewSink
	Tracer         trace.ExportFunc
	DefaultModel   string `yaml:"default_model" env:"FLOWRT_DEFAULT_MODEL" default:"gpt-4o"`
	TestMode       bool   `yaml:"test_mode" env:"FLOWRT_TEST_MODE" default:"false"`
	SampleN        int    `yaml:"sample_n" env:"FLOWRT_SAMPLE_N" default:"1"`
	Logger         core.Logger
}

// DefaultConfig returns the zero-dependency baseline: no provider client
// (a step that needs one fails with a CompileError), no review sink, no
// tracer, the stock default model name, test mode off, sample_n 1.
func DefaultConfig() *Config {
	return &Config{
		DefaultModel: "gpt-4o",
		TestMode:     false,
		SampleN:      1,
		Logger:       core.NoOpLogger{},
	}
}

// LoadFromEnv overlays FLOWRT_* environment variables onto c. Functional
// options (via NewConfig) still apply afterward and take priority.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FLOWRT_DEFAULT_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("FLOWRT_TEST_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("runtimeconfig: FLOWRT_TEST_MODE: %w", err)
		}
		c.TestMode = b
	}
	if v := os.Getenv("FLOWRT_SAMPLE_N"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("runtimeconfig: FLOWRT_SAMPLE_N: %w", err)
		}
		c.SampleN = n
	}
	return nil
}

// LoadFromYAML overlays a YAML document (only default_model, test_mode,
// and sample_n are file-configurable; the provider client, review sink,
// and tracer are runtime objects wired via Option, not config data).
func (c *Config) LoadFromYAML(data []byte) error {
	var overlay struct {
		DefaultModel string `yaml:"default_model"`
		TestMode     bool   `yaml:"test_mode"`
		SampleN      int    `yaml:"sample_n"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("runtimeconfig: parsing yaml: %w", err)
	}
	if overlay.DefaultModel != "" {
		c.DefaultModel = overlay.DefaultModel
	}
	c.TestMode = overlay.TestMode
	if overlay.SampleN != 0 {
		c.SampleN = overlay.SampleN
	}
	return nil
}

// Option mutates a Config during NewConfig.
type Option func(*Config) error

func WithProviderClient(c provider.Client) Option {
	return func(cfg *Config) error { cfg.ProviderClient = c; return nil }
}

func WithReviewSink(s hitl.ReviewSink) Option {
	return func(cfg *Config) error { cfg.ReviewSink = s; return nil }
}

func WithTracer(t trace.ExportFunc) Option {
	return func(cfg *Config) error { cfg.Tracer = t; return nil }
}

func WithDefaultModel(model string) Option {
	return func(cfg *Config) error { cfg.DefaultModel = model; return nil }
}

func WithTestMode(on bool) Option {
	return func(cfg *Config) error { cfg.TestMode = on; return nil }
}

func WithSampleN(n int) Option {
	return func(cfg *Config) error {
		if n < 1 {
			return fmt.Errorf("runtimeconfig: sample_n must be >= 1, got %d", n)
		}
		cfg.SampleN = n
		return nil
	}
}

func WithLogger(l core.Logger) Option {
	return func(cfg *Config) error { cfg.Logger = l; return nil }
}

func WithYAMLFile(path string) Option {
	return func(cfg *Config) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("runtimeconfig: reading %s: %w", path, err)
		}
		return cfg.LoadFromYAML(data)
	}
}

// NewConfig layers defaults, then environment variables, then opts, in
// that priority order (matching the ambient three-layer convention: lowest
// to highest priority).
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// global holds the process-wide active Config, set via Configure and read
// via Get. It starts as DefaultConfig so every package can read it before
// the process entrypoint has a chance to call Configure.
var (
	global atomic.Pointer[Config]
	mu     sync.Mutex // serializes Configure against concurrent re-configuration
)

func init() {
	global.Store(DefaultConfig())
}

// Configure replaces the process-wide Config.
func Configure(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	global.Store(cfg)
}

// Get returns the current process-wide Config. Callers must not mutate the
// returned value; call Configure to change it instead.
func Get() *Config {
	return global.Load()
}
