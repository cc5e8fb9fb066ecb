package model

// WishlistEntry is one product on the wishlist. Uniqueness is by ProductID.
// Title, Price and ImageURL are a display cache and never authoritative.
type WishlistEntry struct {
	ProductID          string `json:"productId"`
	Handle             string `json:"handle,omitempty"`
	Title              string `json:"title,omitempty"`
	Price              *Money `json:"price,omitempty"`
	ImageURL           string `json:"imageUrl,omitempty"`
	AddedAtEpochMillis int64  `json:"addedAtEpochMillis"`
}

// HasMetadata reports whether display fields have been filled in.
func (e WishlistEntry) HasMetadata() bool {
	return e.Title != ""
}

// Product is the catalog view used to backfill wishlist display metadata.
type Product struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Title     string `json:"title"`
	Price     Money  `json:"price"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Available bool   `json:"available"`
}
