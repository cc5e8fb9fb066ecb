// Package handler exposes the storefront session over local HTTP and MCP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/identity"
	"storefront-sync/internal/model"
	"storefront-sync/internal/session"
	"storefront-sync/internal/wishlist"
)

// Storefront is the session surface the handlers drive.
type Storefront interface {
	AddToCart(ctx context.Context, merchandiseID string, quantity int) (*model.Cart, error)
	UpdateCartQuantity(ctx context.Context, lineID string, quantity int) (*model.Cart, error)
	RemoveFromCart(ctx context.Context, lineID string) (*model.Cart, error)
	Cart() cart.View
	RefreshCart(ctx context.Context) (cart.View, error)

	AddToWishlist(ctx context.Context, entry model.WishlistEntry) error
	RemoveFromWishlist(ctx context.Context, productID string) error
	IsInWishlist(productID string) bool
	Wishlist(ctx context.Context) ([]model.WishlistEntry, error)
	WishlistStatus() (inProgress bool, lastWarning *model.RemoteError)
	SyncWishlist(ctx context.Context) (*wishlist.MergeReport, error)

	Login(ctx context.Context, email, password string) identity.Result
	Register(ctx context.Context, in identity.RegisterInput) identity.Result
	Logout(ctx context.Context) error
	Identity() identity.State
	SignInFederated(ctx context.Context, idToken string) (identity.State, error)
}

// Verify Session implements Storefront interface at compile time.
var _ Storefront = (*session.Session)(nil)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store  Storefront
	logger *slog.Logger
}

// New creates a new Handler.
func New(store Storefront, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/lines", h.handleAddCartLine)
	mux.HandleFunc("PATCH /cart/lines/{id}", h.handleUpdateCartLine)
	mux.HandleFunc("DELETE /cart/lines/{id}", h.handleRemoveCartLine)

	mux.HandleFunc("GET /wishlist", h.handleGetWishlist)
	mux.HandleFunc("PUT /wishlist/{productId}", h.handleAddWishlist)
	mux.HandleFunc("DELETE /wishlist/{productId}", h.handleRemoveWishlist)
	mux.HandleFunc("POST /wishlist/sync", h.handleSyncWishlist)

	mux.HandleFunc("GET /account", h.handleGetAccount)
	mux.HandleFunc("POST /account/login", h.handleLogin)
	mux.HandleFunc("POST /account/register", h.handleRegister)
	mux.HandleFunc("POST /account/logout", h.handleLogout)
	mux.HandleFunc("POST /account/federated", h.handleFederated)

	mux.Handle("/mcp", h.NewMCPHandler())

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// retryAfterSeconds renders d as whole seconds, rounded up, at least 1.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// writeError sends an error response with a status derived from the error kind.
// Errors that are not RemoteErrors are reported as internal without detail.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var re *model.RemoteError
	if !errors.As(err, &re) {
		h.logger.Error("internal error", slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: errorBody{Kind: "Internal", Code: "INTERNAL_ERROR", Message: "an internal error occurred"},
		})
		return
	}

	status := statusForError(re)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds(re.RetryAfter))
	}
	h.writeJSON(w, status, errorResponse{
		Error: errorBody{Kind: string(re.Kind), Code: re.Code, Message: re.Message},
	})
}

// statusForError maps an error kind to the HTTP status shown to local clients.
func statusForError(re *model.RemoteError) int {
	switch re.Kind {
	case model.KindRemoteValidation:
		if re.Code == codeBadRequest {
			return http.StatusBadRequest
		}
		return http.StatusUnprocessableEntity
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindStaleHandle:
		return http.StatusConflict
	case model.KindNetwork:
		if re.RetryAfter > 0 {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

const codeBadRequest = "BAD_REQUEST"

// MaxRequestBodySize limits JSON request bodies to 1MB.
const MaxRequestBodySize = 1 << 20

// decodeJSON reads JSON from request body into v. An empty body is an error
// unless optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return model.NewValidationError(codeBadRequest, "invalid JSON")
	}
	return nil
}

// resultError turns a failed identity.Result into a RemoteError.
func resultError(res identity.Result) *model.RemoteError {
	return &model.RemoteError{Kind: res.Kind, Message: res.Error}
}
