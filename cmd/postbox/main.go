package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/andrebq/postbox/cmd/postbox/serve"
	"github.com/andrebq/postbox/cmd/postbox/users"
	"github.com/andrebq/postbox/internal/logutil"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	logLevel := "info"
	logPretty := false
	app := &cli.App{
		Name:  "postbox",
		Usage: "A tiny blog: write posts, share links",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Minimum level to log (trace, debug, info, warn, error)",
				Value:       logLevel,
				Destination: &logLevel,
			},
			&cli.BoolFlag{
				Name:        "log-pretty",
				Usage:       "Human friendly logs, intended for terminals",
				Value:       logPretty,
				Destination: &logPretty,
			},
		},
		Before: func(ctx *cli.Context) error {
			logger, err := logutil.Setup(logLevel, logPretty)
			if err != nil {
				return err
			}
			ctx.Context = logutil.WithLogger(ctx.Context, logger)
			return nil
		},
		Commands: []*cli.Command{
			serve.Cmd(),
			users.Cmd(),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}
