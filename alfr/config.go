package alfr

import (
	"fmt"
	"os"
	"time"

	"llmalfr-go/logger"
)

const (
	// DefaultTimeout is the wall-clock budget for one Generate call.
	DefaultTimeout = 120 * time.Second
	// DefaultMaxInputTokens caps the encoded prompt; longer prompts are truncated.
	DefaultMaxInputTokens = 512
	// DefaultPadToken is assigned when the tokenizer has no usable pad token.
	DefaultPadToken = "[PAD]"
)

// Config holds the configuration for a Session
type Config struct {
	ModelDir       string
	Device         string
	DType          string
	NumThreads     int
	Timeout        time.Duration
	MaxInputTokens int
	PadToken       string
	Seed           int64
	Sampling       *SamplingParams
	Logger         logger.Logger
}

// ConfigOption is a functional option for Config
type ConfigOption func(*Config)

// NewConfig creates a new Config with default values. The model directory
// must exist; it is not created or downloaded.
func NewConfig(modelDir string, opts ...ConfigOption) (*Config, error) {
	c := &Config{
		ModelDir:       modelDir,
		Device:         "cpu",
		DType:          "float16",
		NumThreads:     0,
		Timeout:        DefaultTimeout,
		MaxInputTokens: DefaultMaxInputTokens,
		PadToken:       DefaultPadToken,
		Seed:           -1,
		Logger:         logger.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.Sampling == nil {
		c.Sampling = NewSamplingParams()
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	info, err := os.Stat(c.ModelDir)
	if err != nil {
		return fmt.Errorf("model directory %s: %w", c.ModelDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("model path is not a directory: %s", c.ModelDir)
	}

	// No accelerator execution providers are ever registered.
	if c.Device != "cpu" {
		return fmt.Errorf("unsupported device %q: only cpu is supported", c.Device)
	}

	if c.DType != "float16" && c.DType != "float32" {
		return fmt.Errorf("dtype must be float16 or float32, got %q", c.DType)
	}

	if c.NumThreads < 0 {
		return fmt.Errorf("num_threads must be >= 0")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.MaxInputTokens < 1 {
		return fmt.Errorf("max_input_tokens must be >= 1")
	}

	if c.PadToken == "" {
		return fmt.Errorf("pad token must not be empty")
	}

	if c.Logger == nil {
		return fmt.Errorf("logger must not be nil")
	}

	return nil
}

// WithDevice sets the execution device
func WithDevice(device string) ConfigOption {
	return func(c *Config) {
		c.Device = device
	}
}

// WithDType sets the weight precision ("float16" or "float32")
func WithDType(dtype string) ConfigOption {
	return func(c *Config) {
		c.DType = dtype
	}
}

// WithNumThreads sets the intra-op thread count; 0 lets the runtime decide
func WithNumThreads(n int) ConfigOption {
	return func(c *Config) {
		c.NumThreads = n
	}
}

// WithTimeout sets the per-call generation budget
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithMaxInputTokens sets the prompt truncation length
func WithMaxInputTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxInputTokens = n
	}
}

// WithPadToken sets the token assigned when the tokenizer lacks a distinct pad token
func WithPadToken(token string) ConfigOption {
	return func(c *Config) {
		c.PadToken = token
	}
}

// WithSeed fixes the sampling RNG seed; negative means time-seeded
func WithSeed(seed int64) ConfigOption {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithSamplingParams replaces the default sampling parameters
func WithSamplingParams(sp *SamplingParams) ConfigOption {
	return func(c *Config) {
		c.Sampling = sp
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = l
	}
}
