package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"storefront-sync/internal/model"
	"storefront-sync/internal/session"
)

func wishlistCommand() *cli.Command {
	return &cli.Command{
		Name:  "wishlist",
		Usage: "show or change the wishlist",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the wishlist",
				Action: func(c *cli.Context) error {
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						return printWishlist(ctx, c, s)
					})
				},
			},
			{
				Name:      "add",
				Usage:     "add a product",
				ArgsUsage: "<product-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("usage: storefront wishlist add <product-id>")
					}
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						if err := s.AddToWishlist(ctx, model.WishlistEntry{ProductID: c.Args().First()}); err != nil {
							return err
						}
						return printWishlist(ctx, c, s)
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "remove a product",
				ArgsUsage: "<product-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("usage: storefront wishlist remove <product-id>")
					}
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						if err := s.RemoveFromWishlist(ctx, c.Args().First()); err != nil {
							return err
						}
						return printWishlist(ctx, c, s)
					})
				},
			},
			{
				Name:  "sync",
				Usage: "merge with the signed-in customer's saved wishlist",
				Action: func(c *cli.Context) error {
					return withSession(c, func(ctx context.Context, s *session.Session) error {
						report, err := s.SyncWishlist(ctx)
						if err != nil {
							return err
						}
						return emit(c, report, func(w io.Writer) {
							success(w, "wishlist synced: %s", report)
						})
					})
				},
			},
		},
	}
}

func printWishlist(ctx context.Context, c *cli.Context, s *session.Session) error {
	entries, err := s.Wishlist(ctx)
	if err != nil && !c.Bool("quiet") {
		fmt.Fprintf(c.App.ErrWriter, "%swarning:%s product details unavailable: %v\n", colorYellow, colorReset, err)
	}
	if entries == nil {
		entries = []model.WishlistEntry{}
	}
	return emit(c, entries, func(w io.Writer) {
		if c.Bool("quiet") {
			for _, e := range entries {
				fmt.Fprintln(w, e.ProductID)
			}
			return
		}
		if len(entries) == 0 {
			fmt.Fprintf(w, "%swishlist is empty%s\n", colorGray, colorReset)
			return
		}
		heading(w, fmt.Sprintf("Wishlist (%d)", len(entries)))
		for _, e := range entries {
			title := e.Title
			if title == "" {
				title = colorGray + "(details pending)" + colorReset
			}
			price := ""
			if e.Price != nil {
				price = "  " + e.Price.String()
			}
			fmt.Fprintf(w, "  %s%s%s  %s%s\n", colorCyan, e.ProductID, colorReset, title, price)
		}
	})
}
