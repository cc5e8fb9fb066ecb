// Package session composes the cart, wishlist and identity synchronizers
// behind the operations the storefront UI calls.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/gateway"
	"storefront-sync/internal/identity"
	"storefront-sync/internal/model"
	"storefront-sync/internal/persist"
	"storefront-sync/internal/wishlist"
)

// Deps are the collaborators a Session is built from.
// Federated may be nil when federated login is not configured.
type Deps struct {
	Gateway   gateway.Gateway
	Wishlists wishlist.RemoteStore
	Federated identity.FederatedProvider
	Store     persist.Store
	Logger    *slog.Logger
}

// tokenStorer is implemented by federated providers that accept an ID token
// handed over by the sign-in UI.
type tokenStorer interface {
	StoreIDToken(idToken string) error
}

// Session is one browser profile's view of the store.
type Session struct {
	cart      *cart.Synchronizer
	wishlist  *wishlist.Synchronizer
	identity  *identity.Reconciler
	federated identity.FederatedProvider
	logger    *slog.Logger
}

// New wires the synchronizers together. The wishlist follows identity changes
// from the start, so the first Resolve already merges.
func New(d Deps) (*Session, error) {
	if d.Gateway == nil {
		return nil, errors.New("session: gateway is required")
	}
	if d.Wishlists == nil {
		return nil, errors.New("session: wishlist store is required")
	}
	if d.Store == nil {
		return nil, errors.New("session: persistence store is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Session{
		cart:      cart.New(d.Gateway, d.Store, logger),
		wishlist:  wishlist.New(d.Wishlists, d.Gateway, d.Store, logger),
		identity:  identity.New(d.Gateway, d.Federated, d.Store, logger),
		federated: d.Federated,
		logger:    logger.With("component", "session"),
	}
	s.wishlist.AttachIdentity(s.identity)
	return s, nil
}

// Start resolves the customer and hydrates the cart. A hydrate failure is
// returned but leaves the session usable.
func (s *Session) Start(ctx context.Context) error {
	st := s.identity.Resolve(ctx)
	s.logger.Info("session started",
		"status", st.Status,
		"cart_handle", s.cart.Handle(),
	)
	if err := s.cart.Hydrate(ctx); err != nil {
		s.logger.Warn("cart hydrate failed", "error", err)
		return err
	}
	return nil
}

// Close stops following identity changes and waits for background
// wishlist work to finish.
func (s *Session) Close() {
	s.wishlist.Close()
}

// === Cart ===

func (s *Session) AddToCart(ctx context.Context, merchandiseID string, quantity int) (*model.Cart, error) {
	return s.cart.AddLine(ctx, merchandiseID, quantity)
}

func (s *Session) UpdateCartQuantity(ctx context.Context, lineID string, quantity int) (*model.Cart, error) {
	return s.cart.UpdateLineQuantity(ctx, lineID, quantity)
}

func (s *Session) RemoveFromCart(ctx context.Context, lineID string) (*model.Cart, error) {
	return s.cart.RemoveLine(ctx, lineID)
}

// Cart returns the current cart view without a remote call.
func (s *Session) Cart() cart.View {
	return s.cart.View()
}

// RefreshCart re-reads the cart from the backend.
func (s *Session) RefreshCart(ctx context.Context) (cart.View, error) {
	err := s.cart.Refresh(ctx)
	return s.cart.View(), err
}

// SubscribeCart registers fn for cart view changes.
func (s *Session) SubscribeCart(fn func(cart.View)) (unsubscribe func()) {
	return s.cart.Subscribe(fn)
}

// DismissCartPanel closes the cart panel opened by an add.
func (s *Session) DismissCartPanel() {
	s.cart.DismissPanel()
}

// === Wishlist ===

func (s *Session) AddToWishlist(ctx context.Context, entry model.WishlistEntry) error {
	return s.wishlist.Add(ctx, entry)
}

func (s *Session) RemoveFromWishlist(ctx context.Context, productID string) error {
	return s.wishlist.Remove(ctx, productID)
}

func (s *Session) IsInWishlist(productID string) bool {
	return s.wishlist.Contains(productID)
}

// Wishlist returns the entries with display metadata backfilled where
// possible. Entries are returned even when the backfill fails.
func (s *Session) Wishlist(ctx context.Context) ([]model.WishlistEntry, error) {
	return s.wishlist.View(ctx)
}

// WishlistStatus reports background sync progress and the last warning.
func (s *Session) WishlistStatus() (inProgress bool, lastWarning *model.RemoteError) {
	return s.wishlist.SyncInProgress(), s.wishlist.LastWarning()
}

// SyncWishlist runs a merge for the signed-in customer.
func (s *Session) SyncWishlist(ctx context.Context) (*wishlist.MergeReport, error) {
	st := s.identity.Current()
	if !st.Authenticated() {
		return nil, model.NewUnauthorizedError("sign in to sync the wishlist")
	}
	return s.wishlist.Merge(ctx, st.Email())
}

// WaitForSync blocks until background wishlist work has finished.
func (s *Session) WaitForSync() {
	s.wishlist.Wait()
}

// === Identity ===

func (s *Session) Login(ctx context.Context, email, password string) identity.Result {
	return s.identity.Login(ctx, email, password)
}

func (s *Session) Register(ctx context.Context, in identity.RegisterInput) identity.Result {
	return s.identity.Register(ctx, in)
}

func (s *Session) Logout(ctx context.Context) error {
	return s.identity.Logout(ctx)
}

// Identity returns the resolved identity state.
func (s *Session) Identity() identity.State {
	return s.identity.Current()
}

// ResolveIdentity re-runs identity resolution.
func (s *Session) ResolveIdentity(ctx context.Context) identity.State {
	return s.identity.Resolve(ctx)
}

// SignInFederated stores an ID token from the federated sign-in UI and
// resolves identity with it.
func (s *Session) SignInFederated(ctx context.Context, idToken string) (identity.State, error) {
	if strings.TrimSpace(idToken) == "" {
		return s.identity.Current(), model.NewValidationError("INVALID", "id token is required")
	}
	storer, ok := s.federated.(tokenStorer)
	if !ok {
		return s.identity.Current(), model.NewValidationError("FEDERATED_DISABLED", "federated login is not configured")
	}
	if err := storer.StoreIDToken(idToken); err != nil {
		return s.identity.Current(), model.Normalize(err)
	}
	st := s.identity.Resolve(ctx)
	if !st.Authenticated() || st.Identity.Origin != model.OriginFederated {
		return st, model.NewUnauthorizedError("federated sign-in was not accepted")
	}
	return st, nil
}
