package storefront

import (
	"context"
	"fmt"

	"storefront-sync/internal/model"
)

// === Cart Operations ===

// CreateCart creates a cart, optionally seeded with lines.
func (c *Client) CreateCart(ctx context.Context, lines []model.LineInput) (*model.Cart, error) {
	input, err := lineInputs(lines, true)
	if err != nil {
		return nil, err
	}

	var data struct {
		CartCreate cartPayload `json:"cartCreate"`
	}
	vars := map[string]any{"input": map[string]any{"lines": input}}
	if err := c.do(ctx, "cartCreate", queryCartCreate, vars, &data); err != nil {
		return nil, err
	}
	return cartResult("", data.CartCreate)
}

// AddCartLines adds lines to an existing cart. The backend merges identical merchandise.
func (c *Client) AddCartLines(ctx context.Context, handle model.CartHandle, lines []model.LineInput) (*model.Cart, error) {
	if err := requireHandle(handle); err != nil {
		return nil, err
	}
	input, err := lineInputs(lines, false)
	if err != nil {
		return nil, err
	}

	var data struct {
		CartLinesAdd cartPayload `json:"cartLinesAdd"`
	}
	vars := map[string]any{"cartId": string(handle), "lines": input}
	if err := c.do(ctx, "cartLinesAdd", queryCartLinesAdd, vars, &data); err != nil {
		return nil, err
	}
	return cartResult(handle, data.CartLinesAdd)
}

// UpdateCartLine sets the quantity of one line. quantity must be at least 1;
// removal goes through RemoveCartLines.
func (c *Client) UpdateCartLine(ctx context.Context, handle model.CartHandle, lineID string, quantity int) (*model.Cart, error) {
	if err := requireHandle(handle); err != nil {
		return nil, err
	}
	if lineID == "" {
		return nil, model.NewValidationError("INVALID", "line id is required")
	}
	if quantity < 1 {
		return nil, model.NewValidationError("INVALID", "quantity must be at least 1")
	}

	var data struct {
		CartLinesUpdate cartPayload `json:"cartLinesUpdate"`
	}
	vars := map[string]any{
		"cartId": string(handle),
		"lines":  []cartLineUpdateInput{{ID: lineID, Quantity: quantity}},
	}
	if err := c.do(ctx, "cartLinesUpdate", queryCartLinesUpdate, vars, &data); err != nil {
		return nil, err
	}
	return cartResult(handle, data.CartLinesUpdate)
}

// RemoveCartLines removes lines by id.
func (c *Client) RemoveCartLines(ctx context.Context, handle model.CartHandle, lineIDs []string) (*model.Cart, error) {
	if err := requireHandle(handle); err != nil {
		return nil, err
	}
	if len(lineIDs) == 0 {
		return nil, model.NewValidationError("INVALID", "at least one line id is required")
	}
	for _, id := range lineIDs {
		if id == "" {
			return nil, model.NewValidationError("INVALID", "line id is required")
		}
	}

	var data struct {
		CartLinesRemove cartPayload `json:"cartLinesRemove"`
	}
	vars := map[string]any{"cartId": string(handle), "lineIds": lineIDs}
	if err := c.do(ctx, "cartLinesRemove", queryCartLinesRemove, vars, &data); err != nil {
		return nil, err
	}
	return cartResult(handle, data.CartLinesRemove)
}

// FetchCart retrieves the authoritative snapshot. A null cart means the handle is stale.
func (c *Client) FetchCart(ctx context.Context, handle model.CartHandle) (*model.Cart, error) {
	if err := requireHandle(handle); err != nil {
		return nil, err
	}

	var data struct {
		Cart *cartNode `json:"cart"`
	}
	if err := c.do(ctx, "cart", queryCart, map[string]any{"id": string(handle)}, &data); err != nil {
		return nil, err
	}
	if data.Cart == nil {
		return nil, model.NewStaleHandleError(handle)
	}
	return convertCart(data.Cart)
}

func cartResult(handle model.CartHandle, p cartPayload) (*model.Cart, error) {
	if err := userErrorsToError(handle, p.UserErrors); err != nil {
		return nil, err
	}
	if p.Cart == nil {
		if handle == "" {
			return nil, model.NewNetworkError(serviceName, fmt.Errorf("cart missing from response"))
		}
		return nil, model.NewStaleHandleError(handle)
	}
	return convertCart(p.Cart)
}

func convertCart(n *cartNode) (*model.Cart, error) {
	cart, err := toCart(n)
	if err != nil {
		return nil, model.NewNetworkError(serviceName, fmt.Errorf("decoding cart: %w", err))
	}
	return cart, nil
}

func requireHandle(handle model.CartHandle) error {
	if handle == "" {
		return model.NewValidationError("INVALID", "cart handle is required")
	}
	return nil
}

func lineInputs(lines []model.LineInput, allowEmpty bool) ([]cartLineInput, error) {
	if len(lines) == 0 && !allowEmpty {
		return nil, model.NewValidationError("INVALID", "at least one line is required")
	}
	out := make([]cartLineInput, 0, len(lines))
	for _, l := range lines {
		if l.MerchandiseID == "" {
			return nil, model.NewValidationError("INVALID", "merchandise id is required")
		}
		if l.Quantity < 1 {
			return nil, model.NewValidationError("INVALID", "quantity must be at least 1")
		}
		out = append(out, cartLineInput{MerchandiseID: l.MerchandiseID, Quantity: l.Quantity})
	}
	return out, nil
}
