// Package cart mirrors one remote cart locally.
//
// The Synchronizer owns the cart handle (persisted under the "cart"
// namespace), serializes mutations per line and per handle creation, and
// replaces its mirror wholesale with every snapshot the backend returns.
// Totals are never computed locally.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"storefront-sync/internal/gateway"
	"storefront-sync/internal/model"
	"storefront-sync/internal/persist"
	"storefront-sync/internal/serial"
)

const (
	namespace = "cart"
	handleKey = "handle"

	queueHandle     = "handle"
	queueLinePrefix = "line:"
)

// State is the synchronizer's lifecycle state.
type State string

const (
	StateEmpty     State = "empty"
	StateHydrating State = "hydrating"
	StateReady     State = "ready"
	StateMutating  State = "mutating"
	StateError     State = "error"
)

// View is what UI collaborators render.
type View struct {
	Cart         *model.Cart        `json:"cart"`
	State        State              `json:"state"`
	Pending      bool               `json:"pending"`
	PendingLines []string           `json:"pendingLines,omitempty"`
	OpenPanel    bool               `json:"openPanel"`
	LastError    *model.RemoteError `json:"lastError,omitempty"`
}

// Synchronizer keeps the local cart mirror consistent with the backend.
type Synchronizer struct {
	api    gateway.CartAPI
	store  persist.Store
	logger *slog.Logger
	queue  serial.Queue

	mu        sync.Mutex
	handle    model.CartHandle
	mirror    *model.Cart
	hydrating bool
	inflight  int
	openPanel bool
	lastErr   *model.RemoteError

	subMu       sync.Mutex
	nextSub     int
	subscribers map[int]func(View)
}

// New creates a Synchronizer. store is the shared persistence store; the
// synchronizer confines itself to the "cart" namespace.
func New(api gateway.CartAPI, store persist.Store, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Synchronizer{
		api:         api,
		store:       persist.Namespace(store, namespace),
		logger:      logger.With("component", "cart"),
		subscribers: make(map[int]func(View)),
	}
	if h, ok := s.store.Get(handleKey); ok {
		s.handle = model.CartHandle(h)
	}
	return s
}

// Handle returns the current cart handle, or "" before the first add.
func (s *Synchronizer) Handle() model.CartHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// View returns a snapshot of the mirror and sync state.
func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Synchronizer) viewLocked() View {
	v := View{
		Cart:      s.mirror.Clone(),
		Pending:   s.inflight > 0,
		OpenPanel: s.openPanel,
		LastError: s.lastErr,
	}
	for _, k := range s.queue.PendingKeys() {
		if id, ok := strings.CutPrefix(k, queueLinePrefix); ok {
			v.PendingLines = append(v.PendingLines, id)
		}
	}
	sort.Strings(v.PendingLines)

	switch {
	case s.hydrating:
		v.State = StateHydrating
	case s.inflight > 0:
		v.State = StateMutating
	case s.lastErr != nil:
		v.State = StateError
	case s.mirror == nil:
		v.State = StateEmpty
	default:
		v.State = StateReady
	}
	return v
}

// Subscribe registers fn to receive every view change. The returned func unsubscribes.
func (s *Synchronizer) Subscribe(fn func(View)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Synchronizer) notify() {
	v := s.View()
	s.subMu.Lock()
	subs := make([]func(View), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// DismissPanel clears the open-panel hint set by AddLine.
func (s *Synchronizer) DismissPanel() {
	s.mu.Lock()
	s.openPanel = false
	s.mu.Unlock()
	s.notify()
}

// === Lifecycle ===

// Hydrate loads the persisted handle and fetches its snapshot. A stale
// handle is discarded and the cart becomes empty. A network failure keeps
// the handle so a later Refresh can retry.
func (s *Synchronizer) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	handle := s.handle
	s.hydrating = handle != ""
	s.mu.Unlock()

	if handle == "" {
		s.notify()
		return nil
	}
	s.notify()

	cart, err := s.api.FetchCart(ctx, handle)

	s.mu.Lock()
	s.hydrating = false
	s.mu.Unlock()

	return s.settleFetch(handle, cart, err)
}

// Refresh re-fetches the authoritative snapshot for the current handle.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	handle := s.Handle()
	if handle == "" {
		return nil
	}
	cart, err := s.api.FetchCart(ctx, handle)
	return s.settleFetch(handle, cart, err)
}

func (s *Synchronizer) settleFetch(handle model.CartHandle, cart *model.Cart, err error) error {
	defer s.notify()

	if err == nil {
		s.apply(cart)
		return nil
	}
	if handleGone(err) {
		s.logger.Info("discarding stale cart handle", "handle", handle)
		s.discardHandle(handle)
		return nil
	}

	rerr := model.Normalize(err)
	s.mu.Lock()
	s.lastErr = rerr
	s.mu.Unlock()
	s.logger.Warn("cart fetch failed", "handle", handle, "error", err)
	return rerr
}

// === Mutations ===

// AddLine adds quantity of merchandiseID, creating the remote cart first if
// none exists. The backend may merge the line into an existing one.
func (s *Synchronizer) AddLine(ctx context.Context, merchandiseID string, quantity int) (*model.Cart, error) {
	if quantity < 1 {
		return nil, model.NewValidationError("INVALID", "quantity must be at least 1")
	}
	if merchandiseID == "" {
		return nil, model.NewValidationError("INVALID", "merchandise id is required")
	}

	s.begin(true)
	defer s.end()

	lines := []model.LineInput{{MerchandiseID: merchandiseID, Quantity: quantity}}
	cart, err := s.withHandle(ctx, func(h model.CartHandle) (*model.Cart, error) {
		return s.api.AddCartLines(ctx, h, lines)
	})
	return s.settle("add", cart, err)
}

// UpdateLineQuantity sets a line's quantity. Zero removes the line. Calls for
// the same line run one at a time in arrival order.
func (s *Synchronizer) UpdateLineQuantity(ctx context.Context, lineID string, quantity int) (*model.Cart, error) {
	if quantity < 0 {
		return nil, model.NewValidationError("INVALID", "quantity must not be negative")
	}
	if quantity == 0 {
		return s.RemoveLine(ctx, lineID)
	}
	if lineID == "" {
		return nil, model.NewValidationError("INVALID", "line id is required")
	}

	release, err := s.queue.Acquire(ctx, queueLinePrefix+lineID)
	if err != nil {
		return nil, model.NewNetworkError("cart", err)
	}
	defer release()

	s.begin(false)
	defer s.end()

	if s.Handle() == "" {
		return s.settle("update", nil, model.NewValidationError("INVALID", "line not found: "+lineID))
	}
	cart, err := s.withExistingHandle(ctx, func(h model.CartHandle) (*model.Cart, error) {
		return s.api.UpdateCartLine(ctx, h, lineID, quantity)
	})
	return s.settle("update", cart, err)
}

// RemoveLine removes a line. Removing a line that is already gone succeeds
// and returns the mirror unchanged.
func (s *Synchronizer) RemoveLine(ctx context.Context, lineID string) (*model.Cart, error) {
	if lineID == "" {
		return nil, model.NewValidationError("INVALID", "line id is required")
	}

	release, err := s.queue.Acquire(ctx, queueLinePrefix+lineID)
	if err != nil {
		return nil, model.NewNetworkError("cart", err)
	}
	defer release()

	s.begin(false)
	defer s.end()

	if s.Handle() == "" {
		return s.unchanged(), nil
	}
	cart, err := s.withExistingHandle(ctx, func(h model.CartHandle) (*model.Cart, error) {
		return s.api.RemoveCartLines(ctx, h, []string{lineID})
	})
	if model.IsLineNotFound(err) {
		s.logger.Debug("line already absent", "line_id", lineID)
		return s.unchanged(), nil
	}
	return s.settle("remove", cart, err)
}

// begin marks a mutation in flight.
func (s *Synchronizer) begin(openPanel bool) {
	s.mu.Lock()
	s.inflight++
	if openPanel {
		s.openPanel = true
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) end() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
	s.notify()
}

// settle records the outcome of a mutation. On failure the mirror is left
// at its last known-good snapshot.
func (s *Synchronizer) settle(op string, cart *model.Cart, err error) (*model.Cart, error) {
	if err != nil {
		rerr := model.Normalize(err)
		s.mu.Lock()
		s.lastErr = rerr
		s.mu.Unlock()
		s.logger.Warn("cart mutation failed", "op", op, "kind", rerr.Kind, "error", err)
		return nil, rerr
	}
	s.apply(cart)
	return cart.Clone(), nil
}

func (s *Synchronizer) unchanged() *model.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror.Clone()
}

// apply replaces the mirror. Responses win in arrival order. Only create
// changes the handle; a late snapshot of a replaced cart is dropped.
func (s *Synchronizer) apply(cart *model.Cart) {
	if cart == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cart.Handle != "" && cart.Handle != s.handle {
		s.logger.Debug("dropping snapshot of replaced cart", "handle", cart.Handle, "current", s.handle)
		return
	}
	s.mirror = cart.Clone()
	s.lastErr = nil
}

// === Handle management ===

// withHandle runs op against the current handle, creating a cart first when
// there is none. A stale handle is replaced and op replayed once.
func (s *Synchronizer) withHandle(ctx context.Context, op func(model.CartHandle) (*model.Cart, error)) (*model.Cart, error) {
	handle, err := s.ensureHandle(ctx)
	if err != nil {
		return nil, err
	}
	return s.replayOnStale(ctx, handle, op)
}

// withExistingHandle is withHandle for operations that need a cart to exist.
func (s *Synchronizer) withExistingHandle(ctx context.Context, op func(model.CartHandle) (*model.Cart, error)) (*model.Cart, error) {
	return s.replayOnStale(ctx, s.Handle(), op)
}

func (s *Synchronizer) replayOnStale(ctx context.Context, handle model.CartHandle, op func(model.CartHandle) (*model.Cart, error)) (*model.Cart, error) {
	cart, err := op(handle)
	if !handleGone(err) {
		return cart, err
	}

	s.logger.Warn("cart handle stale, recreating", "handle", handle)
	fresh, cerr := s.recreate(ctx, handle)
	if cerr != nil {
		return nil, cerr
	}
	cart, err = op(fresh)
	if err != nil && handleGone(err) {
		return nil, model.NewStaleHandleError(fresh)
	}
	return cart, err
}

// handleGone reports whether err from a call that carried the cart handle
// means the cart itself is gone. Besides StaleHandle errors, a bare
// "not found" validation counts when it does not name a line or the
// merchandise.
func handleGone(err error) bool {
	if model.IsStaleHandle(err) {
		return true
	}
	var re *model.RemoteError
	if !errors.As(err, &re) || re.Kind != model.KindRemoteValidation {
		return false
	}
	msg := strings.ToLower(re.Message)
	for _, other := range []string{"line", "merchandise", "variant", "product", "quantity"} {
		if strings.Contains(msg, other) {
			return false
		}
	}
	return re.Code == "NOT_FOUND" ||
		strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

// ensureHandle returns the current handle, creating a cart if there is none.
// Creation is serialized so concurrent first adds share one cart.
func (s *Synchronizer) ensureHandle(ctx context.Context) (model.CartHandle, error) {
	if h := s.Handle(); h != "" {
		return h, nil
	}

	release, err := s.queue.Acquire(ctx, queueHandle)
	if err != nil {
		return "", model.NewNetworkError("cart", err)
	}
	defer release()

	if h := s.Handle(); h != "" {
		return h, nil
	}
	return s.create(ctx)
}

// recreate discards stale and creates a new cart, unless another caller
// already replaced it.
func (s *Synchronizer) recreate(ctx context.Context, stale model.CartHandle) (model.CartHandle, error) {
	release, err := s.queue.Acquire(ctx, queueHandle)
	if err != nil {
		return "", model.NewNetworkError("cart", err)
	}
	defer release()

	if h := s.Handle(); h != "" && h != stale {
		return h, nil
	}
	s.discardHandle(stale)
	return s.create(ctx)
}

// create must be called while holding the handle queue key.
func (s *Synchronizer) create(ctx context.Context) (model.CartHandle, error) {
	cart, err := s.api.CreateCart(ctx, nil)
	if err != nil {
		return "", err
	}
	if cart == nil || cart.Handle == "" {
		return "", model.NewNetworkError("cart", errors.New("backend returned a cart without a handle"))
	}

	s.mu.Lock()
	s.setHandleLocked(cart.Handle)
	s.mirror = cart.Clone()
	s.mu.Unlock()

	s.logger.Info("cart created", "handle", cart.Handle)
	return cart.Handle, nil
}

func (s *Synchronizer) setHandleLocked(h model.CartHandle) {
	s.handle = h
	if err := s.store.Set(handleKey, string(h)); err != nil {
		s.logger.Error("persisting cart handle", "error", err)
	}
}

// discardHandle forgets handle if it is still current.
func (s *Synchronizer) discardHandle(handle model.CartHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != handle {
		return
	}
	s.handle = ""
	s.mirror = nil
	if err := s.store.Remove(handleKey); err != nil {
		s.logger.Error("removing cart handle", "error", err)
	}
}
