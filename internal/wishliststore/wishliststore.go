// Package wishliststore holds the per-customer remote wishlist record.
//
// Firestore keeps one document per owner in a collection; Memory keeps the
// same shape in process for local development and tests. Both refuse to add
// products the catalog reports as unknown or no longer available.
package wishliststore

import (
	"context"
	"fmt"
	"strings"

	"storefront-sync/internal/gateway"
	"storefront-sync/internal/model"
)

// DefaultCollection is the Firestore collection holding wishlist documents.
const DefaultCollection = "wishlists"

// checkAvailable rejects productID unless the catalog lists it as available.
// A nil catalog accepts everything.
func checkAvailable(ctx context.Context, catalog gateway.CatalogAPI, productID string) error {
	if catalog == nil {
		return nil
	}
	products, err := catalog.ProductsByID(ctx, []string{productID})
	if err != nil {
		return err
	}
	for _, p := range products {
		if p.ID == productID && p.Available {
			return nil
		}
	}
	return model.NewValidationError("PRODUCT_UNAVAILABLE", fmt.Sprintf("product %s is no longer available", productID))
}

func validate(owner, productID string) error {
	if strings.TrimSpace(owner) == "" {
		return model.NewValidationError("INVALID", "wishlist owner is required")
	}
	if productID == "" {
		return model.NewValidationError("INVALID", "product id is required")
	}
	return nil
}
