package storefront

import (
	"context"
	"fmt"

	"storefront-sync/internal/gateway"
	"storefront-sync/internal/model"
)

// ProductsByID loads product metadata. Unknown ids are skipped.
func (c *Client) ProductsByID(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var data struct {
		Nodes []*productNode `json:"nodes"`
	}
	if err := c.do(ctx, "products", queryProducts, map[string]any{"ids": ids}, &data); err != nil {
		return nil, err
	}

	products := make([]model.Product, 0, len(data.Nodes))
	for _, n := range data.Nodes {
		// Unknown ids and non-product nodes come back null or empty.
		if n == nil || n.ID == "" {
			continue
		}
		p, err := toProduct(n)
		if err != nil {
			return nil, model.NewNetworkError(serviceName, fmt.Errorf("decoding product %s: %w", n.ID, err))
		}
		products = append(products, p)
	}
	return products, nil
}

// Verify Client implements Gateway interface at compile time.
var _ gateway.Gateway = (*Client)(nil)
