package serve

import (
	"github.com/andrebq/postbox/cmd/postbox/serve/api"
	"github.com/andrebq/postbox/cmd/postbox/serve/query"
	"github.com/andrebq/postbox/cmd/postbox/serve/router"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Root command to start various postbox services",
		Subcommands: []*cli.Command{
			api.Cmd(),
			router.Cmd(),
			query.Cmd(),
		},
	}
}
