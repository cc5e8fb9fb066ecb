// Package model defines the domain types shared by the synchronizers and the gateway.
package model

// CartHandle is the opaque identifier of one remote cart.
type CartHandle string

// Cart is a full snapshot of a remote cart as returned by every cart operation.
// A snapshot is never patched locally; each response replaces the previous one.
type Cart struct {
	Handle        CartHandle `json:"handle"`
	CheckoutURL   string     `json:"checkoutUrl"`
	Lines         []CartLine `json:"lines"`
	TotalQuantity int        `json:"totalQuantity"`
	Totals        CartTotals `json:"totals"`
}

// CartTotals are taken verbatim from the backend. Shipping, tax and discount
// logic live there, so they are never recomputed from unit prices.
type CartTotals struct {
	Subtotal Money  `json:"subtotal"`
	Tax      *Money `json:"tax,omitempty"`
	Total    Money  `json:"total"`
}

// CartLine is one line of a remote cart. Quantity is always >= 1; a quantity
// of zero is expressed by removing the line.
type CartLine struct {
	LineID        string `json:"lineId"`
	MerchandiseID string `json:"merchandiseId"`
	Title         string `json:"title,omitempty"`
	Quantity      int    `json:"quantity"`
	UnitPrice     Money  `json:"unitPrice"`
	LineTotal     Money  `json:"lineTotal"`
}

// Line returns the line with the given id.
func (c *Cart) Line(lineID string) (CartLine, bool) {
	if c == nil {
		return CartLine{}, false
	}
	for _, l := range c.Lines {
		if l.LineID == lineID {
			return l, true
		}
	}
	return CartLine{}, false
}

// Clone returns a deep copy so callers can hold a snapshot while the mirror moves on.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = append([]CartLine(nil), c.Lines...)
	if c.Totals.Tax != nil {
		tax := *c.Totals.Tax
		out.Totals.Tax = &tax
	}
	return &out
}

// LineInput is a request to add merchandise to a cart.
type LineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// SyncState describes an in-flight mutation and the last failure of a synchronizer.
// While Pending is true, conflicting mutations against the same entity wait.
type SyncState struct {
	Pending   bool         `json:"pending"`
	LastError *RemoteError `json:"lastError,omitempty"`
}
