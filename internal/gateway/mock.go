package gateway

import (
	"context"

	"storefront-sync/internal/model"
)

// Mock implements Gateway for testing.
// Each method can be configured via function fields.
type Mock struct {
	CreateCartFunc        func(ctx context.Context, lines []model.LineInput) (*model.Cart, error)
	AddCartLinesFunc      func(ctx context.Context, handle model.CartHandle, lines []model.LineInput) (*model.Cart, error)
	UpdateCartLineFunc    func(ctx context.Context, handle model.CartHandle, lineID string, quantity int) (*model.Cart, error)
	RemoveCartLinesFunc   func(ctx context.Context, handle model.CartHandle, lineIDs []string) (*model.Cart, error)
	FetchCartFunc         func(ctx context.Context, handle model.CartHandle) (*model.Cart, error)
	CreateCustomerFunc    func(ctx context.Context, in model.CustomerInput) (*model.Customer, error)
	CreateAccessTokenFunc func(ctx context.Context, email, password string) (*model.AccessToken, error)
	FetchCustomerFunc     func(ctx context.Context, accessToken string) (*model.Customer, error)
	ProductsByIDFunc      func(ctx context.Context, ids []string) ([]model.Product, error)
}

// CreateCart calls the configured CreateCartFunc or returns an empty cart.
func (m *Mock) CreateCart(ctx context.Context, lines []model.LineInput) (*model.Cart, error) {
	if m.CreateCartFunc != nil {
		return m.CreateCartFunc(ctx, lines)
	}
	return &model.Cart{Handle: "gid://mock/Cart/1", Lines: []model.CartLine{}}, nil
}

// AddCartLines calls the configured AddCartLinesFunc or returns a stale-handle error.
func (m *Mock) AddCartLines(ctx context.Context, handle model.CartHandle, lines []model.LineInput) (*model.Cart, error) {
	if m.AddCartLinesFunc != nil {
		return m.AddCartLinesFunc(ctx, handle, lines)
	}
	return nil, model.NewStaleHandleError(handle)
}

// UpdateCartLine calls the configured UpdateCartLineFunc or returns a stale-handle error.
func (m *Mock) UpdateCartLine(ctx context.Context, handle model.CartHandle, lineID string, quantity int) (*model.Cart, error) {
	if m.UpdateCartLineFunc != nil {
		return m.UpdateCartLineFunc(ctx, handle, lineID, quantity)
	}
	return nil, model.NewStaleHandleError(handle)
}

// RemoveCartLines calls the configured RemoveCartLinesFunc or returns a stale-handle error.
func (m *Mock) RemoveCartLines(ctx context.Context, handle model.CartHandle, lineIDs []string) (*model.Cart, error) {
	if m.RemoveCartLinesFunc != nil {
		return m.RemoveCartLinesFunc(ctx, handle, lineIDs)
	}
	return nil, model.NewStaleHandleError(handle)
}

// FetchCart calls the configured FetchCartFunc or returns a stale-handle error.
func (m *Mock) FetchCart(ctx context.Context, handle model.CartHandle) (*model.Cart, error) {
	if m.FetchCartFunc != nil {
		return m.FetchCartFunc(ctx, handle)
	}
	return nil, model.NewStaleHandleError(handle)
}

// CreateCustomer calls the configured CreateCustomerFunc or echoes the input.
func (m *Mock) CreateCustomer(ctx context.Context, in model.CustomerInput) (*model.Customer, error) {
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, in)
	}
	return &model.Customer{ID: "gid://mock/Customer/1", Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}, nil
}

// CreateAccessToken calls the configured CreateAccessTokenFunc or rejects the credentials.
func (m *Mock) CreateAccessToken(ctx context.Context, email, password string) (*model.AccessToken, error) {
	if m.CreateAccessTokenFunc != nil {
		return m.CreateAccessTokenFunc(ctx, email, password)
	}
	return nil, model.NewValidationError("UNIDENTIFIED_CUSTOMER", "Unidentified customer")
}

// FetchCustomer calls the configured FetchCustomerFunc or returns an unauthorized error.
func (m *Mock) FetchCustomer(ctx context.Context, accessToken string) (*model.Customer, error) {
	if m.FetchCustomerFunc != nil {
		return m.FetchCustomerFunc(ctx, accessToken)
	}
	return nil, model.NewUnauthorizedError("invalid customer access token")
}

// ProductsByID calls the configured ProductsByIDFunc or returns no products.
func (m *Mock) ProductsByID(ctx context.Context, ids []string) ([]model.Product, error) {
	if m.ProductsByIDFunc != nil {
		return m.ProductsByIDFunc(ctx, ids)
	}
	return nil, nil
}

// Verify Mock implements Gateway interface at compile time.
var _ Gateway = (*Mock)(nil)
