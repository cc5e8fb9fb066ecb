package storefront

import (
	"context"
	"strings"

	"storefront-sync/internal/model"
)

// === Customer Operations ===

// CreateCustomer registers a customer. Password may be empty for accounts
// provisioned on behalf of a federated identity.
func (c *Client) CreateCustomer(ctx context.Context, in model.CustomerInput) (*model.Customer, error) {
	if strings.TrimSpace(in.Email) == "" {
		return nil, model.NewValidationError("BLANK", "email is required")
	}

	var data struct {
		CustomerCreate customerCreatePayload `json:"customerCreate"`
	}
	vars := map[string]any{"input": customerCreateInput{
		Email:     strings.TrimSpace(in.Email),
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}}
	if err := c.do(ctx, "customerCreate", queryCustomerCreate, vars, &data); err != nil {
		return nil, err
	}
	if err := userErrorsToError("", data.CustomerCreate.CustomerUserErrors); err != nil {
		return nil, err
	}
	if data.CustomerCreate.Customer == nil {
		return nil, model.NewValidationError("", "customer was not created")
	}
	return toCustomer(data.CustomerCreate.Customer), nil
}

// CreateAccessToken exchanges credentials for a customer access token.
func (c *Client) CreateAccessToken(ctx context.Context, email, password string) (*model.AccessToken, error) {
	if strings.TrimSpace(email) == "" {
		return nil, model.NewValidationError("BLANK", "email is required")
	}

	var data struct {
		Payload accessTokenPayload `json:"customerAccessTokenCreate"`
	}
	vars := map[string]any{"input": map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	}}
	if err := c.do(ctx, "customerAccessTokenCreate", queryCustomerAccessTokenCreate, vars, &data); err != nil {
		return nil, err
	}
	if err := userErrorsToError("", data.Payload.CustomerUserErrors); err != nil {
		return nil, err
	}
	tok := data.Payload.CustomerAccessToken
	if tok == nil || tok.AccessToken == "" {
		return nil, model.NewValidationError("UNIDENTIFIED_CUSTOMER", "Unidentified customer")
	}
	return &model.AccessToken{Token: tok.AccessToken, ExpiresAt: parseExpiry(tok.ExpiresAt)}, nil
}

// FetchCustomer loads the profile behind an access token. A null customer
// means the token is no longer valid.
func (c *Client) FetchCustomer(ctx context.Context, accessToken string) (*model.Customer, error) {
	if accessToken == "" {
		return nil, model.NewUnauthorizedError("access token is required")
	}

	var data struct {
		Customer *customerNode `json:"customer"`
	}
	if err := c.do(ctx, "customer", queryCustomer, map[string]any{"token": accessToken}, &data); err != nil {
		return nil, err
	}
	if data.Customer == nil {
		return nil, model.NewUnauthorizedError("customer access token is invalid or expired")
	}
	return toCustomer(data.Customer), nil
}
