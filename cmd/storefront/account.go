package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"storefront-sync/internal/identity"
	"storefront-sync/internal/model"
	"storefront-sync/internal/session"
)

func accountCommand() *cli.Command {
	credentials := []cli.Flag{
		&cli.StringFlag{Name: "email", Required: true},
		&cli.StringFlag{Name: "password", EnvVars: []string{"STOREFRONT_PASSWORD"}, Required: true},
	}

	return &cli.Command{
		Name:  "account",
		Usage: "sign in, sign out or show the current customer",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the current customer",
				Action: func(c *cli.Context) error {
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						return printIdentity(c, s.Identity())
					})
				},
			},
			{
				Name:  "login",
				Usage: "sign in with email and password",
				Flags: credentials,
				Action: func(c *cli.Context) error {
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						res := s.Login(ctx, c.String("email"), c.String("password"))
						if !res.Success {
							return resultError(res)
						}
						return printIdentity(c, s.Identity())
					})
				},
			},
			{
				Name:  "register",
				Usage: "create an account and sign in",
				Flags: append(credentials,
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
				),
				Action: func(c *cli.Context) error {
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						res := s.Register(ctx, identity.RegisterInput{
							Email:     c.String("email"),
							Password:  c.String("password"),
							FirstName: c.String("first-name"),
							LastName:  c.String("last-name"),
						})
						if !res.Success {
							return resultError(res)
						}
						return printIdentity(c, s.Identity())
					})
				},
			},
			{
				Name:  "logout",
				Usage: "sign out",
				Action: func(c *cli.Context) error {
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						if err := s.Logout(ctx); err != nil {
							return err
						}
						return printIdentity(c, s.Identity())
					})
				},
			},
		},
	}
}

func resultError(res identity.Result) error {
	return &model.RemoteError{Kind: res.Kind, Message: res.Error}
}

func printIdentity(c *cli.Context, st identity.State) error {
	return emit(c, st, func(w io.Writer) {
		if !st.Authenticated() {
			if !c.Bool("quiet") {
				fmt.Fprintf(w, "%snot signed in%s\n", colorGray, colorReset)
			}
			return
		}
		if c.Bool("quiet") {
			fmt.Fprintln(w, st.Email())
			return
		}
		id := st.Identity
		success(w, "signed in as %s%s%s (%s)", colorBold, id.DisplayName, colorReset, id.Email)
		fmt.Fprintf(w, "  origin %s\n", id.Origin)
	})
}
