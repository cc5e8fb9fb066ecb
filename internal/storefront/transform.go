package storefront

import (
	"fmt"
	"time"

	"storefront-sync/internal/model"
)

func toMoney(m moneyV2) (model.Money, error) {
	return model.ParseMoney(m.Amount, m.CurrencyCode)
}

// toCart converts a cart node into the domain snapshot. Totals are taken as
// reported; nothing is recomputed locally.
func toCart(n *cartNode) (*model.Cart, error) {
	cart := &model.Cart{
		Handle:        model.CartHandle(n.ID),
		CheckoutURL:   n.CheckoutURL,
		TotalQuantity: n.TotalQuantity,
		Lines:         make([]model.CartLine, 0, len(n.Lines.Edges)),
	}

	var err error
	if cart.Totals.Subtotal, err = toMoney(n.Cost.SubtotalAmount); err != nil {
		return nil, fmt.Errorf("subtotal: %w", err)
	}
	if cart.Totals.Total, err = toMoney(n.Cost.TotalAmount); err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	if n.Cost.TotalTaxAmount != nil {
		tax, err := toMoney(*n.Cost.TotalTaxAmount)
		if err != nil {
			return nil, fmt.Errorf("tax: %w", err)
		}
		cart.Totals.Tax = &tax
	}

	for _, edge := range n.Lines.Edges {
		line, err := toCartLine(edge.Node)
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", edge.Node.ID, err)
		}
		cart.Lines = append(cart.Lines, line)
	}
	return cart, nil
}

func toCartLine(n cartLineNode) (model.CartLine, error) {
	unit, err := toMoney(n.Cost.AmountPerQuantity)
	if err != nil {
		return model.CartLine{}, err
	}
	total, err := toMoney(n.Cost.TotalAmount)
	if err != nil {
		return model.CartLine{}, err
	}

	title := n.Merchandise.Product.Title
	if n.Merchandise.Title != "" && n.Merchandise.Title != "Default Title" {
		title = title + " - " + n.Merchandise.Title
	}

	return model.CartLine{
		LineID:        n.ID,
		MerchandiseID: n.Merchandise.ID,
		Title:         title,
		Quantity:      n.Quantity,
		UnitPrice:     unit,
		LineTotal:     total,
	}, nil
}

func toCustomer(n *customerNode) *model.Customer {
	return &model.Customer{
		ID:        n.ID,
		Email:     n.Email,
		FirstName: n.FirstName,
		LastName:  n.LastName,
	}
}

func toProduct(n *productNode) (model.Product, error) {
	p := model.Product{
		ID:        n.ID,
		Handle:    n.Handle,
		Title:     n.Title,
		Available: n.AvailableForSale,
	}
	if n.FeaturedImage != nil {
		p.ImageURL = n.FeaturedImage.URL
	}
	if n.PriceRange.MinVariantPrice.CurrencyCode != "" {
		price, err := toMoney(n.PriceRange.MinVariantPrice)
		if err != nil {
			return model.Product{}, err
		}
		p.Price = price
	}
	return p, nil
}

func parseExpiry(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
