// Package storefront implements gateway.Gateway against a GraphQL storefront API.
//
// Every call is a single POST of {query, variables} to the configured endpoint,
// authenticated with the public storefront access token. Mutations report
// business-rule failures as userErrors inside a 200 response; those are
// mapped to RemoteValidation (or StaleHandle when they name the cart).
package storefront

import "encoding/json"

// === GraphQL envelope ===

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// UserError is a business-rule failure returned inside a mutation payload.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code"`
}

// === Money / cart ===

type moneyV2 struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type cartNode struct {
	ID            string `json:"id"`
	CheckoutURL   string `json:"checkoutUrl"`
	TotalQuantity int    `json:"totalQuantity"`
	Cost          struct {
		SubtotalAmount moneyV2  `json:"subtotalAmount"`
		TotalTaxAmount *moneyV2 `json:"totalTaxAmount"`
		TotalAmount    moneyV2  `json:"totalAmount"`
	} `json:"cost"`
	Lines struct {
		Edges []struct {
			Node cartLineNode `json:"node"`
		} `json:"edges"`
	} `json:"lines"`
}

type cartLineNode struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Cost     struct {
		AmountPerQuantity moneyV2 `json:"amountPerQuantity"`
		TotalAmount       moneyV2 `json:"totalAmount"`
	} `json:"cost"`
	Merchandise struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Product struct {
			Title string `json:"title"`
		} `json:"product"`
	} `json:"merchandise"`
}

// cartPayload is shared by cartCreate, cartLinesAdd, cartLinesUpdate and cartLinesRemove.
type cartPayload struct {
	Cart       *cartNode   `json:"cart"`
	UserErrors []UserError `json:"userErrors"`
}

type cartLineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

type cartLineUpdateInput struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// === Customer ===

type customerNode struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type customerCreatePayload struct {
	Customer           *customerNode `json:"customer"`
	CustomerUserErrors []UserError   `json:"customerUserErrors"`
}

type accessTokenPayload struct {
	CustomerAccessToken *struct {
		AccessToken string `json:"accessToken"`
		ExpiresAt   string `json:"expiresAt"`
	} `json:"customerAccessToken"`
	CustomerUserErrors []UserError `json:"customerUserErrors"`
}

type customerCreateInput struct {
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// === Catalog ===

type productNode struct {
	ID               string `json:"id"`
	Handle           string `json:"handle"`
	Title            string `json:"title"`
	AvailableForSale bool   `json:"availableForSale"`
	FeaturedImage    *struct {
		URL string `json:"url"`
	} `json:"featuredImage"`
	PriceRange struct {
		MinVariantPrice moneyV2 `json:"minVariantPrice"`
	} `json:"priceRange"`
}
