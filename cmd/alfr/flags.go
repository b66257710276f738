package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"llmalfr-go/alfr"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool
)

// modelSettings collects the flags that shape a local session
type modelSettings struct {
	dir            string
	dtype          string
	threads        int
	timeout        time.Duration
	maxInputTokens int
	padToken       string
	seed           int64

	maxNewTokens      int
	temperature       float64
	topP              float64
	topK              int
	repetitionPenalty float64
	noRepeatNGram     int
	minLength         int
	greedy            bool
}

func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       configPath(),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func modelFlags(s *modelSettings) []cli.Flag {
	sp := alfr.NewSamplingParams()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to a local model directory",
			Destination: &s.dir,
		},
		&cli.StringFlag{
			Name:        "dtype",
			Usage:       "weight precision (float16, float32)",
			Value:       "float16",
			Destination: &s.dtype,
		},
		&cli.IntFlag{
			Name:        "threads",
			Usage:       "intra-op threads (0 = runtime default)",
			Destination: &s.threads,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "wall-clock budget per generation",
			Value:       alfr.DefaultTimeout,
			Destination: &s.timeout,
		},
		&cli.IntFlag{
			Name:        "max-input-tokens",
			Usage:       "prompt truncation length",
			Value:       alfr.DefaultMaxInputTokens,
			Destination: &s.maxInputTokens,
		},
		&cli.StringFlag{
			Name:        "pad-token",
			Usage:       "pad token used when the tokenizer has none",
			Value:       alfr.DefaultPadToken,
			Destination: &s.padToken,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed (-1 = random)",
			Value:       -1,
			Destination: &s.seed,
		},
		&cli.IntFlag{
			Name:        "max-new-tokens",
			Aliases:     []string{"n"},
			Usage:       "maximum generated tokens",
			Value:       sp.MaxNewTokens,
			Destination: &s.maxNewTokens,
		},
		&cli.FloatFlag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature",
			Value:       sp.Temperature,
			Destination: &s.temperature,
		},
		&cli.FloatFlag{
			Name:        "top-p",
			Usage:       "nucleus sampling threshold",
			Value:       sp.TopP,
			Destination: &s.topP,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "top-k cutoff (0 = disabled)",
			Value:       sp.TopK,
			Destination: &s.topK,
		},
		&cli.FloatFlag{
			Name:        "repetition-penalty",
			Usage:       "repetition penalty",
			Value:       sp.RepetitionPenalty,
			Destination: &s.repetitionPenalty,
		},
		&cli.IntFlag{
			Name:        "no-repeat-ngram",
			Usage:       "ban repeated n-grams of this size (0 = off)",
			Value:       sp.NoRepeatNGramSize,
			Destination: &s.noRepeatNGram,
		},
		&cli.IntFlag{
			Name:        "min-length",
			Usage:       "minimum total sequence length before eos",
			Value:       sp.MinLength,
			Destination: &s.minLength,
		},
		&cli.BoolFlag{
			Name:        "greedy",
			Usage:       "disable sampling and pick the most likely token",
			Destination: &s.greedy,
		},
	}
}

// samplingParams builds validated sampling parameters from the flags
func (s *modelSettings) samplingParams() (sp *alfr.SamplingParams, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid sampling parameters: %v", r)
		}
	}()
	return alfr.NewSamplingParams(
		alfr.WithMaxNewTokens(s.maxNewTokens),
		alfr.WithTemperature(s.temperature),
		alfr.WithTopP(s.topP),
		alfr.WithTopK(s.topK),
		alfr.WithRepetitionPenalty(s.repetitionPenalty),
		alfr.WithNoRepeatNGramSize(s.noRepeatNGram),
		alfr.WithMinLength(s.minLength),
		alfr.WithDoSample(!s.greedy),
	), nil
}

// configOptions turns the flags into session options
func (s *modelSettings) configOptions() ([]alfr.ConfigOption, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("--model is required (or set model_dir in %s)", configFile)
	}
	sp, err := s.samplingParams()
	if err != nil {
		return nil, err
	}
	return []alfr.ConfigOption{
		alfr.WithDType(s.dtype),
		alfr.WithNumThreads(s.threads),
		alfr.WithTimeout(s.timeout),
		alfr.WithMaxInputTokens(s.maxInputTokens),
		alfr.WithPadToken(s.padToken),
		alfr.WithSeed(s.seed),
		alfr.WithSamplingParams(sp),
	}, nil
}
