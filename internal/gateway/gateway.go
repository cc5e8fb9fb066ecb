// Package gateway defines the typed contract with the remote commerce backend.
// Implementations translate the backend's wire API into model types and
// model.RemoteError values.
package gateway

import (
	"context"

	"storefront-sync/internal/model"
)

// Gateway abstracts every backend call the synchronizers make.
// storefront.Client is the production implementation.
//
// All methods either return a parsed result or fail with a *model.RemoteError.
// No method retries; retry policy belongs to callers. Entities are always
// addressed by stable IDs returned from earlier calls, never by position.
type Gateway interface {
	CartAPI
	CustomerAPI
	CatalogAPI
}

// CartAPI covers cart mutations. Every call returns the full authoritative
// cart snapshot (handle, checkout URL, totals, lines).
type CartAPI interface {
	// CreateCart creates a new remote cart, optionally seeded with lines.
	CreateCart(ctx context.Context, lines []model.LineInput) (*model.Cart, error)

	// AddCartLines adds lines. The backend may merge a line into an existing
	// line with the same merchandise without saying so.
	AddCartLines(ctx context.Context, handle model.CartHandle, lines []model.LineInput) (*model.Cart, error)

	// UpdateCartLine sets the quantity of an existing line. quantity must be >= 1.
	UpdateCartLine(ctx context.Context, handle model.CartHandle, lineID string, quantity int) (*model.Cart, error)

	// RemoveCartLines removes lines by ID.
	RemoveCartLines(ctx context.Context, handle model.CartHandle, lineIDs []string) (*model.Cart, error)

	// FetchCart returns the current snapshot. Fails with KindStaleHandle when
	// the backend no longer knows the handle.
	FetchCart(ctx context.Context, handle model.CartHandle) (*model.Cart, error)
}

// CustomerAPI covers backend-native customer accounts.
type CustomerAPI interface {
	// CreateCustomer creates a customer record. Fails with a validation error
	// (see model.IsAlreadyExists) when the email is taken.
	CreateCustomer(ctx context.Context, in model.CustomerInput) (*model.Customer, error)

	// CreateAccessToken exchanges credentials for a customer access token.
	CreateAccessToken(ctx context.Context, email, password string) (*model.AccessToken, error)

	// FetchCustomer returns the customer for a token. Fails with KindUnauthorized
	// when the token is expired or revoked.
	FetchCustomer(ctx context.Context, accessToken string) (*model.Customer, error)
}

// CatalogAPI covers the product reads used to backfill wishlist display data.
type CatalogAPI interface {
	// ProductsByID returns the products that still exist, in no particular order.
	ProductsByID(ctx context.Context, ids []string) ([]model.Product, error)
}
