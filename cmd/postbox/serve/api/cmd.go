package api

import (
	"context"
	"net/http"
	"os"

	"github.com/andrebq/postbox/auth"
	authapi "github.com/andrebq/postbox/auth/api"
	"github.com/andrebq/postbox/blog"
	blogapi "github.com/andrebq/postbox/blog/api"
	"github.com/andrebq/postbox/internal/backend"
	"github.com/andrebq/postbox/internal/cmdflags"
	"github.com/andrebq/postbox/internal/config"
	"github.com/andrebq/postbox/internal/httpserver"
	"github.com/andrebq/postbox/internal/logutil"
	"github.com/andrebq/postbox/internal/throttle"
	"github.com/andrebq/postbox/web"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var (
		configPath     string
		data           string
		bindAddr       string
		secretEnvVar   string
		insecureCookie bool
	)
	return &cli.Command{
		Name:  "api",
		Usage: "Start a postbox writable instance (accounts, sessions, posts and pages)",
		Flags: []cli.Flag{
			cmdflags.Config(&configPath),
			cmdflags.Data(&data),
			cmdflags.Bind(&bindAddr),
			cmdflags.SecretEnvVar(&secretEnvVar),
			cmdflags.InsecureCookie(&insecureCookie),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := cmdflags.Resolve(ctx)
			if err != nil {
				return err
			}
			key, err := auth.KeyFromEnv(cfg.Session.SecretEnv, os.Getenv, os.Setenv)
			if err != nil {
				return err
			}
			defer key.Zero()
			st, err := backend.Open(ctx.Context, cfg.Data, true)
			if err != nil {
				return err
			}
			defer st.Close()
			handler, err := NewHandler(ctx.Context, cfg, st, key)
			if err != nil {
				return err
			}
			log := logutil.GetOrDefault(ctx.Context)
			log.Info().Bool("postgres", backend.IsPostgres(cfg.Data)).Msg("Store ready")
			return httpserver.Serve(ctx.Context, cfg.Bind, handler, cfg.Server)
		},
	}
}

// NewHandler composes the json api and the pages on top of st.
func NewHandler(ctx context.Context, cfg config.Config, st backend.Store, key *auth.Key) (http.Handler, error) {
	ttl := cfg.Session.TTL.Std()
	denylist, err := auth.InMemoryDenylist(ttl)
	if err != nil {
		return nil, err
	}
	realm := authapi.NewRealm(auth.NewIssuer(key, ttl), denylist, cfg.Session.CookieName, cfg.Session.InsecureCookie)
	limiter, err := throttle.New(cfg.Throttle.LoginPerMinute, cfg.Throttle.Burst).TrustProxies(cfg.Throttle.TrustedProxies)
	if err != nil {
		return nil, err
	}
	posts := blog.New(st)
	apiHandler, err := blogapi.AsHandler(ctx, blogapi.Options{
		Posts:    posts,
		Users:    st,
		Realm:    realm,
		Throttle: limiter,
	})
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
