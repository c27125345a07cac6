package cmdflags

import (
	"github.com/andrebq/postbox/internal/config"
	"github.com/urfave/cli/v2"
)

func Config(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to a yaml or jsonc config file",
		EnvVars:     []string{"POSTBOX_CONFIG"},
		Destination: out,
		Value:       *out,
	}
}

func Data(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = config.DefaultData
	}
	return &cli.StringFlag{
		Name:        "data",
		Aliases:     []string{"d"},
		Usage:       "Directory of the sqlite store or a postgres:// connection url",
		Destination: out,
		Value:       *out,
	}
}

func Bind(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = config.DefaultBind
	}
	return &cli.StringFlag{
		Name:        "bind",
		Usage:       "Address to bind for incoming requests",
		Destination: out,
		Value:       *out,
	}
}

func SecretEnvVar(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = config.DefaultSecretEnv
	}
	return &cli.StringFlag{
		Name:        "session-secret-envvar-name",
		Usage:       "Name of the environment variable that holds the session secret. The secret itself should not be passed as an argument",
		Value:       *out,
		Destination: out,
	}
}

func InsecureCookie(out *bool) cli.Flag {
	return &cli.BoolFlag{
		Name:        "insecure-cookie",
		Usage:       "Send the session cookie over plain http, only for local development",
		Value:       *out,
		Destination: out,
	}
}

// Resolve loads the config file named by the config flag and applies
// the flags the user actually set on top of it.
func Resolve(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if ctx.IsSet("bind") {
		cfg.Bind = ctx.String("bind")
	}
	if ctx.IsSet("data") {
		cfg.Data = ctx.String("data")
	}
	if ctx.IsSet("session-secret-envvar-name") {
		cfg.Session.SecretEnv = ctx.String("session-secret-envvar-name")
	}
	if ctx.IsSet("insecure-cookie") {
		cfg.Session.InsecureCookie = ctx.Bool("insecure-cookie")
	}
	if ctx.IsSet("api-endpoint") {
		cfg.Router.API = ctx.String("api-endpoint")
	}
	if ctx.IsSet("query-endpoint") {
		cfg.Router.Query = ctx.String("query-endpoint")
	}
	return cfg, cfg.Validate()
}
