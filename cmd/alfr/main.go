package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"llmalfr-go/logger"
)

type configKey struct{}

func main() {
	app := &cli.Command{
		Name:  "alfr",
		Usage: "Japanese text generation with local causal language models",
		Flags: rootFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return ctx, err
			}
			if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
				logLevel = cfg.LogLevel
			}
			if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
				logFormat = cfg.LogFormat
			}
			if debug {
				logLevel = "debug"
			}
			log := logger.FromFormat(os.Stderr, logFormat, logger.ParseLevel(logLevel))
			ctx = logger.WithContext(ctx, log)
			return context.WithValue(ctx, configKey{}, cfg), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			generateCmd(),
			processCmd(),
			serveCmd(),
			inspectCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configFromContext returns the config loaded by the root command
func configFromContext(ctx context.Context) Config {
	cfg, _ := ctx.Value(configKey{}).(Config)
	return cfg
}
