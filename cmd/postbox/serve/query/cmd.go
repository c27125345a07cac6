package query

import (
	"context"
	"net/http"

	"github.com/andrebq/postbox/blog"
	blogapi "github.com/andrebq/postbox/blog/api"
	"github.com/andrebq/postbox/internal/backend"
	"github.com/andrebq/postbox/internal/cmdflags"
	"github.com/andrebq/postbox/internal/httpserver"
	"github.com/andrebq/postbox/web"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var (
		configPath string
		data       string
		bindAddr   string
	)
	return &cli.Command{
		Name:  "query",
		Usage: "Start a postbox read only instance (post listing, post pages)",
		Flags: []cli.Flag{
			cmdflags.Config(&configPath),
			cmdflags.Data(&data),
			cmdflags.Bind(&bindAddr),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := cmdflags.Resolve(ctx)
			if err != nil {
				return err
			}
			st, err := backend.Open(ctx.Context, cfg.Data, false)
			if err != nil {
				return err
			}
			defer st.Close()
			handler, err := NewHandler(ctx.Context, blog.New(st))
			if err != nil {
				return err
			}
			return httpserver.Serve(ctx.Context, cfg.Bind, handler, cfg.Server)
		},
	}
}

// NewHandler serves only GET routes, writes get a 405 from the api.
func NewHandler(ctx context.Context, posts *blog.Service) (http.Handler, error) {
	apiHandler, err := blogapi.AsQueryHandler(ctx, posts)
	if err != nil {
		return nil, err
	}
	pages, err := web.AsHandler(ctx, posts)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", pages)
	return mux, nil
}
