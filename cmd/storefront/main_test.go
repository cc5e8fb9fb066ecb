package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/identity"
	"storefront-sync/internal/model"
)

// run executes the CLI against an in-memory backend and a temp state file.
func run(t *testing.T, state string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GATEWAY", "memory")
	t.Setenv("WISHLIST_BACKEND", "memory")

	var out, errOut bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = &errOut
	err := a.Run(append([]string{"storefront", "--no-color", "--state", state}, args...))
	return out.String(), err
}

func TestCartCommands(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.json")

	out, err := run(t, state, "cart", "show")
	if err != nil {
		t.Fatalf("cart show: %v", err)
	}
	if !strings.Contains(out, "cart is empty") {
		t.Errorf("output = %q, want empty cart", out)
	}

	out, err = run(t, state, "--json", "cart", "add", "--qty", "2", "gid://memgateway/ProductVariant/11")
	if err != nil {
		t.Fatalf("cart add: %v", err)
	}
	var view cart.View
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if view.Cart == nil || view.Cart.TotalQuantity != 2 {
		t.Fatalf("cart = %+v, want 2 items", view.Cart)
	}

	// Each run is a fresh process over the same state file, so the in-memory
	// backend no longer knows the cart; the stale handle is replaced.
	out, err = run(t, state, "cart", "add", "gid://memgateway/ProductVariant/31")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if !strings.Contains(out, "Cart (1 items)") {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, state, "cart", "update", "line-1", "many"); err == nil {
		t.Error("expected error for non-numeric quantity")
	}
}

func TestWishlistAndAccountCommands(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.json")

	out, err := run(t, state, "-q", "wishlist", "add", "gid://memgateway/Product/2")
	if err != nil {
		t.Fatalf("wishlist add: %v", err)
	}
	if strings.TrimSpace(out) != "gid://memgateway/Product/2" {
		t.Errorf("quiet output = %q", out)
	}

	out, err = run(t, state, "wishlist", "show")
	if err != nil {
		t.Fatalf("wishlist show: %v", err)
	}
	if !strings.Contains(out, "Pour-over Kettle") {
		t.Errorf("output = %q, want backfilled title", out)
	}

	if _, err := run(t, state, "wishlist", "sync"); err == nil {
		t.Error("expected sync to require sign-in")
	}

	_, err = run(t, state, "account", "login", "--email", "nobody@example.test", "--password", "x")
	var re *model.RemoteError
	if err == nil || !errors.As(err, &re) || re.Kind != model.KindRemoteValidation {
		t.Errorf("login error = %v, want RemoteValidation", err)
	}

	out, err = run(t, state, "--json", "account", "show")
	if err != nil {
		t.Fatalf("account show: %v", err)
	}
	var st identity.State
	json.Unmarshal([]byte(out), &st)
	if st.Status != identity.StatusAnonymous {
		t.Errorf("status = %s, want anonymous", st.Status)
	}
}
