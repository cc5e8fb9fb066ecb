// storefront is a command-line shopper for a local storefront session.
// Each command opens the state file, performs one operation and exits, so
// it shares cart, wishlist and sign-in state with storefrontd.
//
// Examples:
//
//	storefront cart add --qty 2 gid://shop/ProductVariant/11
//	storefront wishlist add gid://shop/Product/1
//	storefront account login --email ada@example.com --password "$PW"
//	storefront --json cart show --refresh
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"storefront-sync/internal/app"
	"storefront-sync/internal/config"
	"storefront-sync/internal/session"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", colorRed, colorReset, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "storefront",
		Usage: "manage the local storefront session (cart, wishlist, account)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "JSON config file", EnvVars: []string{"CONFIG_FILE"}},
			&cli.StringFlag{Name: "state", Usage: "state file (overrides config)"},
			&cli.BoolFlag{Name: "json", Usage: "print raw JSON"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "print only ids"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log session activity to stderr"},
			&cli.BoolFlag{Name: "no-color", Usage: "disable colored output", EnvVars: []string{"NO_COLOR"}},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("no-color") {
				disableColors()
			}
			return nil
		},
		Commands: []*cli.Command{
			cartCommand(),
			wishlistCommand(),
			accountCommand(),
		},
	}
}

// withSession builds a session from configuration, runs fn and waits for
// background wishlist work before returning.
func withSession(c *cli.Context, fn func(ctx context.Context, s *session.Session) error) error {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if path := c.String("config"); path != "" {
		os.Setenv("CONFIG_FILE", path)
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if state := c.String("state"); state != "" {
		cfg.StateFile = state
	}

	a, err := app.Build(ctx, cfg, cliLogger(c))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Session.Start(ctx); err != nil && !c.Bool("quiet") {
		fmt.Fprintf(c.App.ErrWriter, "%swarning:%s cart not refreshed: %v\n", colorYellow, colorReset, err)
	}
	if err := fn(ctx, a.Session); err != nil {
		return err
	}
	a.Session.WaitForSync()
	return nil
}

func cliLogger(c *cli.Context) *slog.Logger {
	if !c.Bool("verbose") {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
