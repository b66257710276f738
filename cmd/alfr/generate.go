package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"llmalfr-go/alfr"
	"llmalfr-go/backend"
	"llmalfr-go/logger"
)

func generateCmd() *cli.Command {
	var (
		s          modelSettings
		promptFile string
		jsonOut    bool
		quiet      bool
	)

	return &cli.Command{
		Name:      "generate",
		Usage:     "Continue one or more prompts with a local model",
		ArgsUsage: "[prompt...]",
		Flags: append(modelFlags(&s),
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read prompts from a file, one per line (- for stdin)",
				Destination: &promptFile,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print one JSON object per result",
				Destination: &jsonOut,
			},
			&cli.BoolFlag{
				Name:        "quiet",
				Aliases:     []string{"q"},
				Usage:       "hide the progress bar",
				Destination: &quiet,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, configFromContext(ctx), &s)

			prompts := cmd.Args().Slice()
			if promptFile != "" {
				more, err := readPrompts(promptFile)
				if err != nil {
					return err
				}
				prompts = append(prompts, more...)
			}
			if len(prompts) == 0 {
				return fmt.Errorf("no prompts given")
			}

			opts, err := s.configOptions()
			if err != nil {
				return err
			}
			sess, err := backend.NewSession(s.dir, append(opts, alfr.WithLogger(log))...)
			if err != nil {
				return err
			}
			defer sess.Close()

			results := sess.GenerateAll(ctx, prompts, len(prompts) > 1 && !quiet)
			return printResults(os.Stdout, results, jsonOut)
		},
	}
}

// readPrompts reads non-empty lines from path, or stdin for "-"
func readPrompts(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open prompts: %w", err)
		}
		defer f.Close()
		r = f
	}

	var prompts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}
	return prompts, nil
}

type resultJSON struct {
	Status    string `json:"status"`
	Text      string `json:"text"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	ElapsedMS int64  `json:"elapsed_ms"`
	NewTokens int    `json:"new_tokens"`
}

func printResults(w io.Writer, results []alfr.Result, asJSON bool) error {
	if !asJSON {
		for i, res := range results {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w, res.Message())
		}
		return nil
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, res := range results {
		if err := enc.Encode(resultJSON{
			Status:    res.Kind.String(),
			Text:      res.Text,
			Message:   res.Message(),
			RequestID: res.RequestID,
			ElapsedMS: res.Elapsed.Milliseconds(),
			NewTokens: res.NewTokens,
		}); err != nil {
			return err
		}
	}
	return nil
}
