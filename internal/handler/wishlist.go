package handler

import (
	"log/slog"
	"net/http"

	"storefront-sync/internal/model"
)

type wishlistResponse struct {
	Entries        []model.WishlistEntry `json:"entries"`
	SyncInProgress bool                  `json:"syncInProgress"`
	Warning        *model.RemoteError    `json:"warning,omitempty"`
}

type wishlistEntryRequest struct {
	Handle   string       `json:"handle"`
	Title    string       `json:"title"`
	Price    *model.Money `json:"price"`
	ImageURL string       `json:"imageUrl"`
}

// handleGetWishlist returns the wishlist with metadata backfilled where possible.
// GET /wishlist
func (h *Handler) handleGetWishlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Wishlist(r.Context())
	if err != nil {
		// Entries are still usable without metadata.
		h.logger.WarnContext(r.Context(), "wishlist backfill failed", slog.String("error", err.Error()))
	}
	h.writeJSON(w, http.StatusOK, h.wishlistBody(entries))
}

// handleAddWishlist adds a product. The body optionally carries display metadata.
// PUT /wishlist/{productId}
func (h *Handler) handleAddWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := r.PathValue("productId")

	var req wishlistEntryRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding to wishlist", slog.String("product_id", productID))

	err := h.store.AddToWishlist(ctx, model.WishlistEntry{
		ProductID: productID,
		Handle:    req.Handle,
		Title:     req.Title,
		Price:     req.Price,
		ImageURL:  req.ImageURL,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeWishlist(w, r)
}

// handleRemoveWishlist removes a product.
// DELETE /wishlist/{productId}
func (h *Handler) handleRemoveWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := r.PathValue("productId")

	h.logger.InfoContext(ctx, "removing from wishlist", slog.String("product_id", productID))

	if err := h.store.RemoveFromWishlist(ctx, productID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeWishlist(w, r)
}

// handleSyncWishlist merges with the signed-in customer's remote wishlist.
// POST /wishlist/sync
func (h *Handler) handleSyncWishlist(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.SyncWishlist(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeWishlist(w http.ResponseWriter, r *http.Request) {
	entries, _ := h.store.Wishlist(r.Context())
	h.writeJSON(w, http.StatusOK, h.wishlistBody(entries))
}

func (h *Handler) wishlistBody(entries []model.WishlistEntry) wishlistResponse {
	if entries == nil {
		entries = []model.WishlistEntry{}
	}
	inProgress, warning := h.store.WishlistStatus()
	return wishlistResponse{Entries: entries, SyncInProgress: inProgress, Warning: warning}
}
