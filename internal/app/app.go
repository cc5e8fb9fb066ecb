// Package app wires configuration into a running storefront session.
// Both the daemon and the CLI build their session here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"

	"storefront-sync/internal/config"
	"storefront-sync/internal/federated"
	"storefront-sync/internal/gateway"
	"storefront-sync/internal/gateway/memgateway"
	"storefront-sync/internal/identity"
	"storefront-sync/internal/model"
	"storefront-sync/internal/persist"
	"storefront-sync/internal/session"
	"storefront-sync/internal/storefront"
	"storefront-sync/internal/wishlist"
	"storefront-sync/internal/wishliststore"
)

// App owns the session and the clients it was built from.
type App struct {
	Session *session.Session
	Store   persist.Store

	firestore *firestore.Client
	logger    *slog.Logger
}

// Build opens the state file and connects the configured backends.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := persist.OpenFile(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("opening state file: %w", err)
	}
	return BuildWithStore(ctx, cfg, store, logger)
}

// BuildWithStore is Build on an already opened persistence store.
func BuildWithStore(ctx context.Context, cfg *config.Config, store persist.Store, logger *slog.Logger) (*App, error) {
	a := &App{Store: store, logger: logger}

	gw, err := createGateway(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}

	wishlists, err := a.createWishlistStore(ctx, cfg, gw)
	if err != nil {
		return nil, fmt.Errorf("creating wishlist store: %w", err)
	}

	var fed identity.FederatedProvider
	if cfg.FederatedEnabled() {
		verifier, err := federated.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating federated provider: %w", err)
		}
		fed = federated.NewProvider(verifier, store, logger)
	}

	s, err := session.New(session.Deps{
		Gateway:   gw,
		Wishlists: wishlists,
		Federated: fed,
		Store:     store,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Session = s

	logger.Info("session wired",
		slog.String("gateway", cfg.Gateway),
		slog.String("wishlist_backend", cfg.Wishlist.Backend),
		slog.Bool("federated", fed != nil),
		slog.String("state_file", cfg.StateFile),
	)
	return a, nil
}

// Close waits for background work and releases backend clients.
func (a *App) Close() error {
	if a.Session != nil {
		a.Session.Close()
	}
	if a.firestore != nil {
		if err := a.firestore.Close(); err != nil {
			return fmt.Errorf("closing firestore: %w", err)
		}
	}
	return nil
}

// createGateway creates the commerce backend based on configuration.
func createGateway(cfg *config.Config, logger *slog.Logger) (gateway.Gateway, error) {
	switch cfg.Gateway {
	case config.BackendStorefront:
		return storefront.NewClient(storefront.Config{
			Endpoint:    cfg.GraphQLEndpoint(),
			AccessToken: cfg.Storefront.AccessToken,
			Timeout:     cfg.Timeout(),
			Fingerprint: cfg.Storefront.Fingerprint,
			Logger:      logger,
		})
	case config.BackendMemory:
		b := memgateway.New(memgateway.WithTaxRate(0.08))
		SeedDemoCatalog(b)
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported gateway: %s", cfg.Gateway)
	}
}

func (a *App) createWishlistStore(ctx context.Context, cfg *config.Config, catalog gateway.CatalogAPI) (wishlist.RemoteStore, error) {
	switch cfg.Wishlist.Backend {
	case config.BackendFirestore:
		client, err := wishliststore.NewFirestoreClient(ctx, cfg.Wishlist.ProjectID, cfg.Wishlist.CredentialsFile)
		if err != nil {
			return nil, err
		}
		a.firestore = client
		return wishliststore.NewFirestore(client, cfg.Wishlist.Collection, catalog), nil
	case config.BackendMemory:
		return wishliststore.NewMemory(catalog), nil
	default:
		return nil, errors.New("unsupported wishlist backend: " + cfg.Wishlist.Backend)
	}
}

// SeedDemoCatalog stocks an in-memory backend for local development.
func SeedDemoCatalog(b *memgateway.Backend) {
	for _, p := range []struct {
		id, handle, title, merch, price string
	}{
		{"gid://memgateway/Product/1", "ceramic-mug", "Ceramic Mug", "gid://memgateway/ProductVariant/11", "14.00"},
		{"gid://memgateway/Product/2", "pour-over-kettle", "Pour-over Kettle", "gid://memgateway/ProductVariant/21", "48.50"},
		{"gid://memgateway/Product/3", "linen-apron", "Linen Apron", "gid://memgateway/ProductVariant/31", "32.00"},
	} {
		b.AddProduct(model.Product{ID: p.id, Handle: p.handle, Title: p.title}, p.merch, p.price)
	}
}
