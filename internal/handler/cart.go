package handler

import (
	"log/slog"
	"net/http"

	"storefront-sync/internal/model"
)

type addLineRequest struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

type updateLineRequest struct {
	Quantity *int `json:"quantity"`
}

// handleGetCart returns the cart view. refresh=true re-reads it from the backend.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "true" {
		h.writeJSON(w, http.StatusOK, h.store.Cart())
		return
	}

	view, err := h.store.RefreshCart(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleAddCartLine adds merchandise to the cart, creating the cart if needed.
// POST /cart/lines
func (h *Handler) handleAddCartLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addLineRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, err)
		return
	}
	if req.MerchandiseID == "" {
		h.writeError(w, model.NewValidationError(codeBadRequest, "merchandiseId is required"))
		return
	}

	h.logger.InfoContext(ctx, "adding cart line",
		slog.String("merchandise_id", req.MerchandiseID),
		slog.Int("quantity", req.Quantity),
	)

	c, err := h.store.AddToCart(ctx, req.MerchandiseID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleUpdateCartLine sets a line's quantity. Zero removes the line.
// PATCH /cart/lines/{id}
func (h *Handler) handleUpdateCartLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lineID := r.PathValue("id")

	var req updateLineRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, model.NewValidationError(codeBadRequest, "quantity is required"))
		return
	}

	h.logger.InfoContext(ctx, "updating cart line",
		slog.String("line_id", lineID),
		slog.Int("quantity", *req.Quantity),
	)

	c, err := h.store.UpdateCartQuantity(ctx, lineID, *req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleRemoveCartLine removes a line. Removing an unknown line is not an error.
// DELETE /cart/lines/{id}
func (h *Handler) handleRemoveCartLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lineID := r.PathValue("id")

	h.logger.InfoContext(ctx, "removing cart line", slog.String("line_id", lineID))

	c, err := h.store.RemoveFromCart(ctx, lineID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if c == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}
