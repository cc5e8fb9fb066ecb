// MCP transport for the storefront session using the official MCP Go SDK.
// Tools mirror the REST routes one to one.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/identity"
	"storefront-sync/internal/model"
)

// === MCP Tool Input Types ===

type EmptyInput struct{}

type AddToCartInput struct {
	MerchandiseID string `json:"merchandise_id" jsonschema:"merchandise (variant) ID to add"`
	Quantity      int    `json:"quantity" jsonschema:"quantity to add, at least 1"`
}

type UpdateCartLineInput struct {
	LineID   string `json:"line_id" jsonschema:"cart line ID"`
	Quantity int    `json:"quantity" jsonschema:"new quantity; 0 removes the line"`
}

type RemoveCartLineInput struct {
	LineID string `json:"line_id" jsonschema:"cart line ID"`
}

type WishlistProductInput struct {
	ProductID string `json:"product_id" jsonschema:"product ID"`
}

type LoginInput struct {
	Email    string `json:"email" jsonschema:"customer email"`
	Password string `json:"password" jsonschema:"customer password"`
}

type RegisterInput struct {
	Email     string `json:"email" jsonschema:"customer email"`
	Password  string `json:"password" jsonschema:"customer password"`
	FirstName string `json:"first_name,omitempty" jsonschema:"first name"`
	LastName  string `json:"last_name,omitempty" jsonschema:"last name"`
}

// === MCP Tool Output Types ===
// Money is rendered as "12.50 USD" so outputs have a flat schema.

type CartOutput struct {
	State         string           `json:"state"`
	Handle        string           `json:"handle,omitempty"`
	CheckoutURL   string           `json:"checkout_url,omitempty"`
	TotalQuantity int              `json:"total_quantity"`
	Subtotal      string           `json:"subtotal,omitempty"`
	Tax           string           `json:"tax,omitempty"`
	Total         string           `json:"total,omitempty"`
	Lines         []CartLineOutput `json:"lines"`
	LastError     string           `json:"last_error,omitempty"`
}

type CartLineOutput struct {
	LineID        string `json:"line_id"`
	MerchandiseID string `json:"merchandise_id"`
	Title         string `json:"title,omitempty"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	LineTotal     string `json:"line_total"`
}

type WishlistOutput struct {
	Entries        []WishlistEntryOutput `json:"entries"`
	SyncInProgress bool                  `json:"sync_in_progress"`
	Warning        string                `json:"warning,omitempty"`
}

type WishlistEntryOutput struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title,omitempty"`
	Price     string `json:"price,omitempty"`
}

type AccountOutput struct {
	Status    string `json:"status"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront-sync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront session tools. Manage the shopper's cart and wishlist " +
				"and sign the shopper in or out.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the current cart without contacting the backend.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add merchandise to the cart. Creates the cart on first use.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_cart_line",
		Description: "Set the quantity of a cart line. A quantity of 0 removes it.",
	}, h.mcpUpdateCartLine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_cart_line",
		Description: "Remove a cart line.",
	}, h.mcpRemoveCartLine)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_wishlist",
		Description: "List wishlist entries with product details.",
	}, h.mcpGetWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_wishlist",
		Description: "Add a product to the wishlist.",
	}, h.mcpAddToWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_wishlist",
		Description: "Remove a product from the wishlist.",
	}, h.mcpRemoveFromWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_account",
		Description: "Get the signed-in customer, if any.",
	}, h.mcpGetAccount)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "login",
		Description: "Sign in with email and password.",
	}, h.mcpLogin)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "register",
		Description: "Create an account and sign in with it.",
	}, h.mcpRegister)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "logout",
		Description: "Sign out.",
	}, h.mcpLogout)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *CartOutput, error) {
	return nil, cartOutput(h.store.Cart()), nil
}

func (h *Handler) mcpAddToCart(ctx context.Context, req *mcp.CallToolRequest, input AddToCartInput) (*mcp.CallToolResult, *CartOutput, error) {
	if input.MerchandiseID == "" {
		return nil, nil, fmt.Errorf("merchandise_id is required")
	}
	if _, err := h.store.AddToCart(ctx, input.MerchandiseID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, cartOutput(h.store.Cart()), nil
}

func (h *Handler) mcpUpdateCartLine(ctx context.Context, req *mcp.CallToolRequest, input UpdateCartLineInput) (*mcp.CallToolResult, *CartOutput, error) {
	if input.LineID == "" {
		return nil, nil, fmt.Errorf("line_id is required")
	}
	if _, err := h.store.UpdateCartQuantity(ctx, input.LineID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, cartOutput(h.store.Cart()), nil
}

func (h *Handler) mcpRemoveCartLine(ctx context.Context, req *mcp.CallToolRequest, input RemoveCartLineInput) (*mcp.CallToolResult, *CartOutput, error) {
	if input.LineID == "" {
		return nil, nil, fmt.Errorf("line_id is required")
	}
	if _, err := h.store.RemoveFromCart(ctx, input.LineID); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, cartOutput(h.store.Cart()), nil
}

func (h *Handler) mcpGetWishlist(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *WishlistOutput, error) {
	entries, _ := h.store.Wishlist(ctx)
	return nil, h.wishlistOutput(entries), nil
}

func (h *Handler) mcpAddToWishlist(ctx context.Context, req *mcp.CallToolRequest, input WishlistProductInput) (*mcp.CallToolResult, *WishlistOutput, error) {
	if err := h.store.AddToWishlist(ctx, model.WishlistEntry{ProductID: input.ProductID}); err != nil {
		return nil, nil, h.mcpError(err)
	}
	entries, _ := h.store.Wishlist(ctx)
	return nil, h.wishlistOutput(entries), nil
}

func (h *Handler) mcpRemoveFromWishlist(ctx context.Context, req *mcp.CallToolRequest, input WishlistProductInput) (*mcp.CallToolResult, *WishlistOutput, error) {
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	if err := h.store.RemoveFromWishlist(ctx, input.ProductID); err != nil {
		return nil, nil, h.mcpError(err)
	}
	entries, _ := h.store.Wishlist(ctx)
	return nil, h.wishlistOutput(entries), nil
}

func (h *Handler) mcpGetAccount(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *AccountOutput, error) {
	return nil, accountOutput(h.store.Identity()), nil
}

func (h *Handler) mcpLogin(ctx context.Context, req *mcp.CallToolRequest, input LoginInput) (*mcp.CallToolResult, *AccountOutput, error) {
	res := h.store.Login(ctx, input.Email, input.Password)
	if !res.Success {
		return nil, nil, h.mcpError(resultError(res))
	}
	return nil, accountOutput(h.store.Identity()), nil
}

func (h *Handler) mcpRegister(ctx context.Context, req *mcp.CallToolRequest, input RegisterInput) (*mcp.CallToolResult, *AccountOutput, error) {
	res := h.store.Register(ctx, identity.RegisterInput{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if !res.Success {
		return nil, nil, h.mcpError(resultError(res))
	}
	return nil, accountOutput(h.store.Identity()), nil
}

func (h *Handler) mcpLogout(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *AccountOutput, error) {
	if err := h.store.Logout(ctx); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, accountOutput(h.store.Identity()), nil
}

// mcpError converts session errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var re *model.RemoteError
	if errors.As(err, &re) {
		if re.Code != "" {
			return fmt.Errorf("%s (%s): %s", re.Kind, re.Code, re.Message)
		}
		return fmt.Errorf("%s: %s", re.Kind, re.Message)
	}
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

// === Output mapping ===

func cartOutput(v cart.View) *CartOutput {
	out := &CartOutput{State: string(v.State), Lines: []CartLineOutput{}}
	if v.LastError != nil {
		out.LastError = v.LastError.Error()
	}
	c := v.Cart
	if c == nil {
		return out
	}
	out.Handle = string(c.Handle)
	out.CheckoutURL = c.CheckoutURL
	out.TotalQuantity = c.TotalQuantity
	out.Subtotal = c.Totals.Subtotal.String()
	out.Total = c.Totals.Total.String()
	if c.Totals.Tax != nil {
		out.Tax = c.Totals.Tax.String()
	}
	for _, l := range c.Lines {
		out.Lines = append(out.Lines, CartLineOutput{
			LineID:        l.LineID,
			MerchandiseID: l.MerchandiseID,
			Title:         l.Title,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice.String(),
			LineTotal:     l.LineTotal.String(),
		})
	}
	return out
}

func (h *Handler) wishlistOutput(entries []model.WishlistEntry) *WishlistOutput {
	inProgress, warning := h.store.WishlistStatus()
	out := &WishlistOutput{Entries: []WishlistEntryOutput{}, SyncInProgress: inProgress}
	if warning != nil {
		out.Warning = warning.Error()
	}
	for _, e := range entries {
		entry := WishlistEntryOutput{ProductID: e.ProductID, Title: e.Title}
		if e.Price != nil {
			entry.Price = e.Price.String()
		}
		out.Entries = append(out.Entries, entry)
	}
	return out
}

func accountOutput(st identity.State) *AccountOutput {
	out := &AccountOutput{Status: string(st.Status)}
	if id := st.Identity; id != nil {
		out.Email = id.Email
		out.FirstName = id.FirstName
		out.LastName = id.LastName
		out.Origin = string(id.Origin)
	}
	return out
}
