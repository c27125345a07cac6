package router

import (
	"net/url"

	"github.com/andrebq/postbox/internal/cmdflags"
	"github.com/andrebq/postbox/internal/config"
	"github.com/andrebq/postbox/internal/httpserver"
	"github.com/andrebq/postbox/internal/splitproxy"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var configPath string
	bindAddr := config.DefaultBind
	defaults := config.Default().Router
	apiEndpoint := defaults.API
	queryEndpoint := defaults.Query
	return &cli.Command{
		Name:  "router",
		Usage: "Start the postbox router, reads go to the query instance and everything else to the api",
		Flags: []cli.Flag{
			cmdflags.Config(&configPath),
			cmdflags.Bind(&bindAddr),
			&cli.StringFlag{
				Name:        "api-endpoint",
				Usage:       "Base endpoint of the writable api instance",
				Destination: &apiEndpoint,
				Value:       apiEndpoint,
			},
			&cli.StringFlag{
				Name:        "query-endpoint",
				Usage:       "Base endpoint of the read only query instance",
				Destination: &queryEndpoint,
				Value:       queryEndpoint,
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := cmdflags.Resolve(ctx)
			if err != nil {
				return err
			}
			apiURL, err := url.Parse(cfg.Router.API)
			if err != nil {
				return err
			}
			queryURL, err := url.Parse(cfg.Router.Query)
			if err != nil {
				return err
			}
			handler, err := splitproxy.AsHandler(ctx.Context, apiURL, queryURL)
			if err != nil {
				return err
			}
			return httpserver.Serve(ctx.Context, cfg.Bind, handler, cfg.Server)
		},
	}
}
