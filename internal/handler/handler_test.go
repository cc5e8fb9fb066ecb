package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/gateway/memgateway"
	"storefront-sync/internal/identity"
	"storefront-sync/internal/model"
	"storefront-sync/internal/persist"
	"storefront-sync/internal/session"
	"storefront-sync/internal/wishliststore"
)

func testBackend() *memgateway.Backend {
	b := memgateway.New()
	b.AddProduct(model.Product{ID: "prod-1", Title: "Teapot"}, "merch-1", "24.00")
	b.AddProduct(model.Product{ID: "prod-2", Title: "Tray"}, "merch-2", "11.00")
	b.RegisterCustomer(model.CustomerInput{Email: "kim@example.test", Password: "pw-kim", FirstName: "Kim"})
	return b
}

func testHandler(t *testing.T, b *memgateway.Backend) (*Handler, *http.ServeMux) {
	t.Helper()
	s, err := session.New(session.Deps{
		Gateway:   b,
		Wishlists: wishliststore.NewMemory(b),
		Store:     persist.NewMemory(),
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux
}

func do(mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v\nBody: %s", err, w.Body.String())
	}
	return resp.Error
}

func TestHandleHealth(t *testing.T) {
	_, mux := testHandler(t, testBackend())

	w := do(mux, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp healthResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "ok" {
		t.Errorf("Status = %s, want ok", resp.Status)
	}
}

func TestCartRoutes(t *testing.T) {
	_, mux := testHandler(t, testBackend())

	w := do(mux, "GET", "/cart", nil)
	var view cart.View
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.State != cart.StateEmpty {
		t.Errorf("initial state = %s, want empty", view.State)
	}

	w = do(mux, "POST", "/cart/lines", addLineRequest{MerchandiseID: "merch-1", Quantity: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var c model.Cart
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(c.Lines) != 1 || c.Lines[0].Quantity != 2 {
		t.Fatalf("lines = %+v, want one line of 2", c.Lines)
	}
	if !c.Totals.Total.Equal(model.MustMoney("48.00", "USD")) {
		t.Errorf("total = %s, want 48.00 USD", c.Totals.Total)
	}
	lineID := c.Lines[0].LineID

	qty := 5
	w = do(mux, "PATCH", "/cart/lines/"+lineID, updateLineRequest{Quantity: &qty})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d\nBody: %s", w.Code, w.Body.String())
	}
	json.Unmarshal(w.Body.Bytes(), &c)
	if c.Lines[0].Quantity != 5 {
		t.Errorf("quantity = %d, want 5", c.Lines[0].Quantity)
	}

	w = do(mux, "DELETE", "/cart/lines/"+lineID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d\nBody: %s", w.Code, w.Body.String())
	}
	json.Unmarshal(w.Body.Bytes(), &c)
	if len(c.Lines) != 0 {
		t.Errorf("lines after remove = %d, want 0", len(c.Lines))
	}

	// Removing again is not an error.
	w = do(mux, "DELETE", "/cart/lines/"+lineID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("second remove status = %d, want 200", w.Code)
	}

	w = do(mux, "GET", "/cart?refresh=true", nil)
	if w.Code != http.StatusOK {
		t.Errorf("refresh status = %d", w.Code)
	}
}

func TestCartErrors(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		raw      string
		status   int
		wantKind string
	}{
		{"invalid JSON", "POST", "/cart/lines", nil, "{not json", http.StatusBadRequest, "RemoteValidation"},
		{"missing merchandise", "POST", "/cart/lines", addLineRequest{Quantity: 1}, "", http.StatusBadRequest, "RemoteValidation"},
		{"zero quantity add", "POST", "/cart/lines", addLineRequest{MerchandiseID: "merch-1"}, "", http.StatusUnprocessableEntity, "RemoteValidation"},
		{"unknown merchandise", "POST", "/cart/lines", addLineRequest{MerchandiseID: "nope", Quantity: 1}, "", http.StatusUnprocessableEntity, "RemoteValidation"},
		{"missing quantity", "PATCH", "/cart/lines/x", map[string]any{}, "", http.StatusBadRequest, "RemoteValidation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mux := testHandler(t, testBackend())

			var w *httptest.ResponseRecorder
			if tt.raw != "" {
				req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.raw))
				w = httptest.NewRecorder()
				mux.ServeHTTP(w, req)
			} else {
				w = do(mux, tt.method, tt.path, tt.body)
			}

			if w.Code != tt.status {
				t.Errorf("Status = %d, want %d\nBody: %s", w.Code, tt.status, w.Body.String())
			}
			if got := decodeError(t, w).Kind; got != tt.wantKind {
				t.Errorf("kind = %s, want %s", got, tt.wantKind)
			}
		})
	}
}

func TestCartNetworkError(t *testing.T) {
	b := testBackend()
	_, mux := testHandler(t, b)
	b.FailNext(memgateway.OpCreateCart, model.NewNetworkError("memgateway", errors.New("offline")))

	w := do(mux, "POST", "/cart/lines", addLineRequest{MerchandiseID: "merch-1", Quantity: 1})
	if w.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	if got := decodeError(t, w).Kind; got != "Network" {
		t.Errorf("kind = %s, want Network", got)
	}
}

func TestWishlistRoutes(t *testing.T) {
	_, mux := testHandler(t, testBackend())

	w := do(mux, "PUT", "/wishlist/prod-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var resp wishlistResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Entries) != 1 || resp.Entries[0].Title != "Teapot" {
		t.Errorf("entries = %+v, want backfilled Teapot", resp.Entries)
	}

	w = do(mux, "PUT", "/wishlist/prod-2", wishlistEntryRequest{Title: "My tray"})
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Entries) != 2 || resp.Entries[1].Title != "My tray" {
		t.Errorf("entries = %+v, want caller metadata kept", resp.Entries)
	}

	w = do(mux, "DELETE", "/wishlist/prod-1", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Entries) != 1 || resp.Entries[0].ProductID != "prod-2" {
		t.Errorf("entries after remove = %+v", resp.Entries)
	}

	w = do(mux, "POST", "/wishlist/sync", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous sync status = %d, want 401", w.Code)
	}
}

func TestAccountRoutes(t *testing.T) {
	_, mux := testHandler(t, testBackend())

	w := do(mux, "GET", "/account", nil)
	var st identity.State
	json.Unmarshal(w.Body.Bytes(), &st)
	if st.Status != identity.StatusAnonymous {
		t.Errorf("status = %s, want anonymous", st.Status)
	}

	w = do(mux, "POST", "/account/login", loginRequest{Email: "kim@example.test", Password: "wrong"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("wrong password status = %d, want 422\nBody: %s", w.Code, w.Body.String())
	}

	w = do(mux, "POST", "/account/login", loginRequest{Email: "kim@example.test", Password: "pw-kim"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var res identity.Result
	json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Success || res.Identity == nil || res.Identity.FirstName != "Kim" {
		t.Errorf("result = %+v", res)
	}

	w = do(mux, "POST", "/wishlist/sync", nil)
	if w.Code != http.StatusOK {
		t.Errorf("signed-in sync status = %d\nBody: %s", w.Code, w.Body.String())
	}

	w = do(mux, "POST", "/account/logout", nil)
	json.Unmarshal(w.Body.Bytes(), &st)
	if w.Code != http.StatusOK || st.Status != identity.StatusAnonymous {
		t.Errorf("logout: status %d, identity %s", w.Code, st.Status)
	}

	w = do(mux, "POST", "/account/register", identity.RegisterInput{Email: "new@example.test", Password: "pw-new"})
	if w.Code != http.StatusOK {
		t.Errorf("register status = %d\nBody: %s", w.Code, w.Body.String())
	}

	w = do(mux, "POST", "/account/register", identity.RegisterInput{Email: "new@example.test", Password: "pw-new"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("duplicate register status = %d, want 422", w.Code)
	}

	w = do(mux, "POST", "/account/federated", federatedRequest{IDToken: "tok"})
	if got := decodeError(t, w); got.Code != "FEDERATED_DISABLED" {
		t.Errorf("federated code = %s, want FEDERATED_DISABLED", got.Code)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  *model.RemoteError
		want int
	}{
		{model.NewValidationError("INVALID", "x"), http.StatusUnprocessableEntity},
		{model.NewValidationError(codeBadRequest, "x"), http.StatusBadRequest},
		{model.NewUnauthorizedError("x"), http.StatusUnauthorized},
		{model.NewStaleHandleError("gid://cart/1"), http.StatusConflict},
		{model.NewNetworkError("x", errors.New("y")), http.StatusBadGateway},
		{&model.RemoteError{Kind: model.KindNetwork, RetryAfter: 3 * time.Second}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	h := New(nil, nil)

	w := httptest.NewRecorder()
	h.writeError(w, &model.RemoteError{Kind: model.KindNetwork, Message: "slow down", RetryAfter: 7 * time.Second})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "7" {
		t.Errorf("Retry-After = %q, want 7", got)
	}

	for _, tt := range []struct {
		after time.Duration
		want  string
	}{
		{300 * time.Millisecond, "1"},
		{1500 * time.Millisecond, "2"},
		{2 * time.Second, "2"},
	} {
		w = httptest.NewRecorder()
		h.writeError(w, &model.RemoteError{Kind: model.KindNetwork, Message: "slow down", RetryAfter: tt.after})
		if got := w.Header().Get("Retry-After"); got != tt.want {
			t.Errorf("Retry-After for %v = %q, want %q", tt.after, got, tt.want)
		}
	}

	w = httptest.NewRecorder()
	h.writeError(w, errors.New("boom"))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", w.Code)
	}
	if body := decodeError(t, w); body.Code != "INTERNAL_ERROR" || body.Message == "boom" {
		t.Errorf("internal error leaked detail: %+v", body)
	}
}
