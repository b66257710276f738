package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"llmalfr-go/alfr"
	"llmalfr-go/backend"
	"llmalfr-go/backend/ollama"
	"llmalfr-go/logger"
	"llmalfr-go/server"
)

func serveCmd() *cli.Command {
	var (
		s           modelSettings
		addr        string
		readTimeout time.Duration
		processor   string
		ollamaURL   string
		ollamaModel string
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve generation over HTTP",
		Flags: append(modelFlags(&s),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.StringFlag{
				Name:        "processor",
				Usage:       "backend for /v1/process (local, ollama)",
				Value:       "local",
				Destination: &processor,
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
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFromContext(ctx)
			applyModelConfig(cmd, cfg, &s)
			applyServeConfig(cmd, cfg, &addr)

			opts, err := s.configOptions()
			if err != nil {
				return err
			}
			msg, err := backend.InitializeModel(s.dir, append(opts, alfr.WithLogger(log))...)
			if err != nil {
				return err
			}
			log.Info(msg, "model_dir", s.dir)
			defer alfr.CloseDefault()

			srvOpts := []server.Option{server.WithLogger(log)}
			switch processor {
			case "local":
			case "ollama":
				applyOllamaConfig(cmd, cfg, &ollamaURL, &ollamaModel)
				srvOpts = append(srvOpts, server.WithProcessor(ollama.NewProcessor(
					ollama.WithBaseURL(ollamaURL),
					ollama.WithModel(ollamaModel),
					ollama.WithOptions(cfg.Ollama.Options),
					ollama.WithLogger(log),
				)))
			default:
				return fmt.Errorf("unknown processor %q (want local or ollama)", processor)
			}

			return server.Start(ctx, addr, readTimeout, server.New(srvOpts...))
		},
	}
}
