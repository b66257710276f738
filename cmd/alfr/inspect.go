package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"llmalfr-go/backend"
)

func inspectCmd() *cli.Command {
	var (
		modelDir string
		dtype    string
		format   string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Show tokenizer metadata and the ONNX signature of a model directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to a local model directory",
				Destination: &modelDir,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "weight precision used to pick the ONNX file",
				Value:       "float16",
				Destination: &dtype,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (yaml, json)",
				Value:       "yaml",
				Destination: &format,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := configFromContext(ctx)
			if modelDir == "" {
				modelDir = cfg.ModelDir
			}
			if modelDir == "" {
				return fmt.Errorf("--model is required")
			}

			info, err := backend.Inspect(modelDir, dtype)
			if err != nil {
				return err
			}
			return writeInfo(os.Stdout, info, format)
		},
	}
}

func writeInfo(w io.Writer, info *backend.ModelInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(info)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(info)
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}
