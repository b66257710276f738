package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"llmalfr-go/backend/ollama"
)

// Config represents the config file (~/.config/llmalfr/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	ModelDir       string         `yaml:"model_dir"`
	DType          string         `yaml:"dtype"`
	Threads        *int           `yaml:"threads"`
	Timeout        *time.Duration `yaml:"timeout"`
	MaxInputTokens *int           `yaml:"max_input_tokens"`
	PadToken       string         `yaml:"pad_token"`
	Seed           *int64         `yaml:"seed"`

	// Sampling defaults
	MaxNewTokens      *int     `yaml:"max_new_tokens"`
	Temperature       *float64 `yaml:"temperature"`
	TopP              *float64 `yaml:"top_p"`
	TopK              *int     `yaml:"top_k"`
	RepetitionPenalty *float64 `yaml:"repetition_penalty"`
	NoRepeatNGram     *int     `yaml:"no_repeat_ngram_size"`
	MinLength         *int     `yaml:"min_length"`

	Ollama OllamaConfig `yaml:"ollama"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

// OllamaConfig configures the remote processor
type OllamaConfig struct {
	URL     string         `yaml:"url"`
	Model   string         `yaml:"model"`
	Options ollama.Options `yaml:"options"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "llmalfr", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyModelConfig applies config file defaults to s when the matching
// flag was not explicitly set
func applyModelConfig(c *cli.Command, cfg Config, s *modelSettings) {
	if cfg.ModelDir != "" && !c.IsSet("model") {
		s.dir = cfg.ModelDir
	}
	if cfg.DType != "" && !c.IsSet("dtype") {
		s.dtype = cfg.DType
	}
	if cfg.Threads != nil && !c.IsSet("threads") {
		s.threads = *cfg.Threads
	}
	if cfg.Timeout != nil && !c.IsSet("timeout") {
		s.timeout = *cfg.Timeout
	}
	if cfg.MaxInputTokens != nil && !c.IsSet("max-input-tokens") {
		s.maxInputTokens = *cfg.MaxInputTokens
	}
	if cfg.PadToken != "" && !c.IsSet("pad-token") {
		s.padToken = cfg.PadToken
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		s.seed = *cfg.Seed
	}
	if cfg.MaxNewTokens != nil && !c.IsSet("max-new-tokens") {
		s.maxNewTokens = *cfg.MaxNewTokens
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		s.temperature = *cfg.Temperature
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		s.topP = *cfg.TopP
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		s.topK = *cfg.TopK
	}
	if cfg.RepetitionPenalty != nil && !c.IsSet("repetition-penalty") {
		s.repetitionPenalty = *cfg.RepetitionPenalty
	}
	if cfg.NoRepeatNGram != nil && !c.IsSet("no-repeat-ngram") {
		s.noRepeatNGram = *cfg.NoRepeatNGram
	}
	if cfg.MinLength != nil && !c.IsSet("min-length") {
		s.minLength = *cfg.MinLength
	}
}

// applyOllamaConfig applies config file defaults to the Ollama flags
func applyOllamaConfig(c *cli.Command, cfg Config, url, model *string) {
	if cfg.Ollama.URL != "" && !c.IsSet("ollama-url") {
		*url = cfg.Ollama.URL
	}
	if cfg.Ollama.Model != "" && !c.IsSet("ollama-model") {
		*model = cfg.Ollama.Model
	}
}

// applyServeConfig applies config file defaults to serve command variables
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
