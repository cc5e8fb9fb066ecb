package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v2"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/session"
)

func cartCommand() *cli.Command {
	return &cli.Command{
		Name:  "cart",
		Usage: "show or change the cart",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the cart",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "refresh", Usage: "re-read the cart from the backend"}},
				Action: func(c *cli.Context) error {
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						view := s.Cart()
						if c.Bool("refresh") {
							var err error
							if view, err = s.RefreshCart(ctx); err != nil {
								return err
							}
						}
						return printCart(c, view)
					})
				},
			},
			{
				Name:      "add",
				Usage:     "add merchandise to the cart",
				ArgsUsage: "<merchandise-id>",
				Flags:     []cli.Flag{&cli.IntFlag{Name: "qty", Value: 1, Usage: "quantity"}},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("usage: storefront cart add [--qty N] <merchandise-id>")
					}
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						if _, err := s.AddToCart(ctx, c.Args().First(), c.Int("qty")); err != nil {
							return err
						}
						return printCart(c, s.Cart())
					})
				},
			},
			{
				Name:      "update",
				Usage:     "set a line's quantity (0 removes it)",
				ArgsUsage: "<line-id> <quantity>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return errors.New("usage: storefront cart update <line-id> <quantity>")
					}
					qty, err := strconv.Atoi(c.Args().Get(1))
					if err != nil {
						return fmt.Errorf("invalid quantity %q", c.Args().Get(1))
					}
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						if _, err := s.UpdateCartQuantity(ctx, c.Args().First(), qty); err != nil {
							return err
						}
						return printCart(c, s.Cart())
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "remove a line",
				ArgsUsage: "<line-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("usage: storefront cart remove <line-id>")
					}
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						if _, err := s.RemoveFromCart(ctx, c.Args().First()); err != nil {
							return err
						}
						return printCart(c, s.Cart())
					})
				},
			},
		},
	}
}

func printCart(c *cli.Context, view cart.View) error {
	return emit(c, view, func(w io.Writer) {
		if c.Bool("quiet") {
			if view.Cart != nil {
				fmt.Fprintln(w, view.Cart.Handle)
			}
			return
		}
		if view.Cart == nil {
			fmt.Fprintf(w, "%scart is empty%s\n", colorGray, colorReset)
			return
		}
		heading(w, fmt.Sprintf("Cart (%d items)", view.Cart.TotalQuantity))
		for _, l := range view.Cart.Lines {
			fmt.Fprintf(w, "  %s%s%s  %d × %s = %s\n", colorCyan, l.LineID, colorReset, l.Quantity, l.UnitPrice, l.LineTotal)
			if l.Title != "" {
				fmt.Fprintf(w, "    %s\n", l.Title)
			}
		}
		fmt.Fprintf(w, "  subtotal %s\n", view.Cart.Totals.Subtotal)
		if view.Cart.Totals.Tax != nil {
			fmt.Fprintf(w, "  tax      %s\n", view.Cart.Totals.Tax)
		}
		fmt.Fprintf(w, "  %stotal    %s%s\n", colorBold, view.Cart.Totals.Total, colorReset)
		if view.Cart.CheckoutURL != "" {
			fmt.Fprintf(w, "  checkout %s\n", view.Cart.CheckoutURL)
		}
	})
}
