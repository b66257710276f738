package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"llmalfr-go/alfr"
	"llmalfr-go/backend"
	"llmalfr-go/backend/ollama"
	"llmalfr-go/logger"
)

func processCmd() *cli.Command {
	var (
		s           modelSettings
		backendName string
		instruction string
		text        string
		textFile    string
		ollamaURL   string
		ollamaModel string
		options     []string
	)

	return &cli.Command{
		Name:  "process",
		Usage: "Apply an instruction to a text (summarize, clean up a transcript, ...)",
		Flags: append(modelFlags(&s),
			&cli.StringFlag{
				Name:        "backend",
				Usage:       "processor backend (local, ollama)",
				Value:       "local",
				Destination: &backendName,
			},
			&cli.StringFlag{
				Name:        "instruction",
				Aliases:     []string{"i"},
				Usage:       "instruction for the model",
				Required:    true,
				Destination: &instruction,
			},
			&cli.StringFlag{
				Name:        "context",
				Aliases:     []string{"c"},
				Usage:       "text the instruction applies to",
				Destination: &text,
			},
			&cli.StringFlag{
				Name:        "context-file",
				Usage:       "read the text from a file (- for stdin)",
				Destination: &textFile,
			},
			&cli.StringFlag{
				Name:        "ollama-url",
				Usage:       "Ollama API base URL",
				Value:       ollama.DefaultBaseURL,
				Destination: &ollamaURL,
			},
			&cli.StringFlag{
				Name:        "ollama-model",
				Usage:       "Ollama model name",
				Value:       ollama.DefaultModel,
				Destination: &ollamaModel,
			},
			&cli.StringSliceFlag{
				Name:        "option",
				Aliases:     []string{"o"},
				Usage:       "Ollama option override as key=value (repeatable)",
				Destination: &options,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFromContext(ctx)

			if textFile != "" {
				data, err := readInput(textFile)
				if err != nil {
					return err
				}
				text = data
			}

			var p alfr.Processor
			switch backendName {
			case "local":
				applyModelConfig(cmd, cfg, &s)
				opts, err := s.configOptions()
				if err != nil {
					return err
				}
				sess, err := backend.NewSession(s.dir, append(opts, alfr.WithLogger(log))...)
				if err != nil {
					return err
				}
				defer sess.Close()
				p = sess
			case "ollama":
				applyOllamaConfig(cmd, cfg, &ollamaURL, &ollamaModel)
				overrides, err := parseOptions(options)
				if err != nil {
					return err
				}
				p = ollama.NewProcessor(
					ollama.WithBaseURL(ollamaURL),
					ollama.WithModel(ollamaModel),
					ollama.WithOptions(cfg.Ollama.Options),
					ollama.WithOptions(overrides),
					ollama.WithLogger(log),
				)
			default:
				return fmt.Errorf("unknown backend %q (want local or ollama)", backendName)
			}

			out, err := p.Process(ctx, instruction, text)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

func readInput(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// parseOptions turns key=value pairs into typed Ollama options. Values are
// read as YAML scalars or flow sequences, so "top_k=40" is an int and
// `stop=["\n\n"]` a list.
func parseOptions(pairs []string) (ollama.Options, error) {
	opts := ollama.Options{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q (want key=value)", pair)
		}
		var val any
		if err := yaml.Unmarshal([]byte(raw), &val); err != nil {
			return nil, fmt.Errorf("invalid value for option %s: %w", key, err)
		}
		if val == nil {
			val = raw
		}
		opts[key] = val
	}
	return opts, nil
}
