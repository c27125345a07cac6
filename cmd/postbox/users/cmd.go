package users

import (
	"bufio"
	"encoding/json"
	"errors"
	"strings"

	"github.com/andrebq/postbox/auth"
	"github.com/andrebq/postbox/internal/backend"
	"github.com/andrebq/postbox/internal/cmdflags"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var (
		configPath string
		data       string
	)
	return &cli.Command{
		Name:  "users",
		Usage: "Manage postbox accounts directly on the store",
		Flags: []cli.Flag{
			cmdflags.Config(&configPath),
			cmdflags.Data(&data),
		},
		Subcommands: []*cli.Command{
			registerCmd(),
		},
	}
}

func registerCmd() *cli.Command {
	var email string
	var name string
	return &cli.Command{
		Name:  "register",
		Usage: "Register a new user (password is read from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "email",
				Aliases:     []string{"e"},
				Usage:       "Email of the user to register",
				Destination: &email,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "name",
				Aliases:     []string{"n"},
				Usage:       "Display name, leave empty to show the user as Unnamed",
				Destination: &name,
			},
		},
		Action: func(ctx *cli.Context) error {
			sc := bufio.NewScanner(ctx.App.Reader)
			if !sc.Scan() {
				if sc.Err() != nil {
					return sc.Err()
				}
				return errors.New("missing password from stdin")
			}
			password := auth.PlainText(strings.TrimSpace(sc.Text()))
			if len(password) == 0 {
				return errors.New("missing password from stdin")
			}
			cfg, err := cmdflags.Resolve(ctx)
			if err != nil {
				return err
			}
			st, err := backend.Open(ctx.Context, cfg.Data, true)
			if err != nil {
				return err
			}
			defer st.Close()
			var displayName *string
			if name != "" {
				displayName = &name
			}
			u, err := auth.Register(ctx.Context, st, email, password, displayName)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(ctx.App.Writer)
			return enc.Encode(struct {
				ID    int64   `json:"id"`
				Email string  `json:"email"`
				Name  *string `json:"name"`
			}{u.ID, u.Email, u.Name})
		},
	}
}
