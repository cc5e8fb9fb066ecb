// Package wishlist keeps a local-first set of product references and
// converges it with the signed-in customer's remote record.
//
// Local mutations are persisted before any remote call. While a customer is
// signed in, each mutation is propagated in the background; failures are
// logged and queued in a durable outbox that the next merge replays.
package wishlist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront-sync/internal/gateway"
	"storefront-sync/internal/model"
	"storefront-sync/internal/persist"
	"storefront-sync/internal/serial"
)

const (
	namespace  = "wishlist"
	entriesKey = "entries"
	outboxKey  = "outbox"
)

// RemoteStore is the per-customer remote wishlist record.
// owner is the customer's lower-cased email.
type RemoteStore interface {
	List(ctx context.Context, owner string) ([]string, error)
	Add(ctx context.Context, owner, productID string) error
	Remove(ctx context.Context, owner, productID string) error
}

// Synchronizer owns the wishlist namespace of the persistence store.
type Synchronizer struct {
	remote  RemoteStore
	catalog gateway.CatalogAPI
	store   persist.Store
	logger  *slog.Logger
	queue   serial.Queue
	now     func() time.Time

	mu          sync.Mutex
	entries     []model.WishlistEntry
	owner       string
	inflight    int
	merging     int
	lastWarning *model.RemoteError

	mergeMu sync.Mutex
	outMu   sync.Mutex
	wg      sync.WaitGroup

	detach func()
}

// New creates a Synchronizer and loads the persisted set. catalog may be nil,
// in which case View does no backfill.
func New(remote RemoteStore, catalog gateway.CatalogAPI, store persist.Store, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Synchronizer{
		remote:  remote,
		catalog: catalog,
		store:   persist.Namespace(store, namespace),
		logger:  logger.With("component", "wishlist"),
		now:     time.Now,
	}
	if _, err := persist.GetJSON(s.store, entriesKey, &s.entries); err != nil {
		s.logger.Warn("discarding unreadable wishlist", "error", err)
		s.entries = nil
	}
	return s
}

// === Local operations ===

// Add puts entry on the wishlist. Adding a product that is already present
// is a no-op.
func (s *Synchronizer) Add(ctx context.Context, entry model.WishlistEntry) error {
	if entry.ProductID == "" {
		return model.NewValidationError("INVALID", "product id is required")
	}

	s.mu.Lock()
	if indexOf(s.entries, entry.ProductID) >= 0 {
		s.mu.Unlock()
		return nil
	}
	if entry.AddedAtEpochMillis == 0 {
		entry.AddedAtEpochMillis = s.now().UnixMilli()
	}
	s.entries = append(s.entries, entry)
	if err := s.persistLocked(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		s.mu.Unlock()
		return model.Normalize(err)
	}
	s.propagateLocked(ctx, opAdd, entry.ProductID)
	s.mu.Unlock()
	return nil
}

// Remove takes productID off the wishlist. Removing an absent product is a no-op.
func (s *Synchronizer) Remove(ctx context.Context, productID string) error {
	s.mu.Lock()
	i := indexOf(s.entries, productID)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	prev := s.entries
	s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
	if err := s.persistLocked(); err != nil {
		s.entries = prev
		s.mu.Unlock()
		return model.Normalize(err)
	}
	s.propagateLocked(ctx, opRemove, productID)
	s.mu.Unlock()
	return nil
}

// Contains reports whether productID is on the wishlist.
func (s *Synchronizer) Contains(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.entries, productID) >= 0
}

// Entries returns a copy of the wishlist in insertion order.
func (s *Synchronizer) Entries() []model.WishlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.entries)
}

// SyncInProgress reports whether a merge or propagation is outstanding.
func (s *Synchronizer) SyncInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0 || s.merging > 0
}

// LastWarning returns the most recent propagation failure, if any.
func (s *Synchronizer) LastWarning() *model.RemoteError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWarning
}

// Owner returns the owner remote changes are sent to, or "" when signed out.
func (s *Synchronizer) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Wait blocks until background propagations and merges finish.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// Close detaches from the identity source and waits for background work.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()
	if detach != nil {
		detach()
	}
	s.Wait()
}

// === Remote propagation ===

// propagateLocked sends one mutation to the remote record in the background
// when a customer is signed in. The turn for productID is reserved before
// s.mu is released, so propagations reach the remote in the order of the
// local mutations. The request outlives ctx cancellation.
func (s *Synchronizer) propagateLocked(ctx context.Context, kind opKind, productID string) {
	owner := s.owner
	if owner == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	wait, release := s.queue.Enqueue(productID)
	s.inflight++

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.inflight--
			s.mu.Unlock()
		}()
		defer release()

		if err := wait(ctx); err != nil {
			return
		}

		err := s.apply(ctx, owner, kind, productID)
		if err == nil {
			s.dropOutbox(owner, productID)
			return
		}

		rerr := model.Normalize(err)
		s.mu.Lock()
		s.lastWarning = rerr
		s.mu.Unlock()
		s.logger.Warn("wishlist propagation failed",
			"op", kind,
			"product_id", productID,
			"owner", owner,
			"kind", rerr.Kind,
			"error", err,
		)
		if rerr.Kind == model.KindRemoteValidation {
			// Rejected outright; the next merge prunes it.
			s.dropOutbox(owner, productID)
			return
		}
		s.enqueue(outboxOp{Owner: owner, Op: kind, ProductID: productID, LastError: rerr.Message})
	}()
}

func (s *Synchronizer) apply(ctx context.Context, owner string, kind opKind, productID string) error {
	if kind == opRemove {
		return s.remote.Remove(ctx, owner, productID)
	}
	return s.remote.Add(ctx, owner, productID)
}

// === View ===

// View returns the wishlist with display metadata backfilled for entries
// that have none. A backfill failure returns the entries as they are along
// with the error.
func (s *Synchronizer) View(ctx context.Context) ([]model.WishlistEntry, error) {
	entries := s.Entries()
	if s.catalog == nil {
		return entries, nil
	}

	var missing []string
	for _, e := range entries {
		if !e.HasMetadata() {
			missing = append(missing, e.ProductID)
		}
	}
	if len(missing) == 0 {
		return entries, nil
	}

	products, err := s.catalog.ProductsByID(ctx, missing)
	if err != nil {
		s.logger.Warn("wishlist backfill failed", "count", len(missing), "error", err)
		return entries, model.Normalize(err)
	}

	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	s.mu.Lock()
	for i := range s.entries {
		p, ok := byID[s.entries[i].ProductID]
		if !ok || s.entries[i].HasMetadata() {
			continue
		}
		price := p.Price
		s.entries[i].Handle = p.Handle
		s.entries[i].Title = p.Title
		s.entries[i].Price = &price
		s.entries[i].ImageURL = p.ImageURL
	}
	if err := s.persistLocked(); err != nil {
		s.logger.Error("persisting wishlist", "error", err)
	}
	out := cloneEntries(s.entries)
	s.mu.Unlock()

	return out, nil
}

// === helpers ===

func (s *Synchronizer) persistLocked() error {
	return persist.SetJSON(s.store, entriesKey, s.entries)
}

func indexOf(entries []model.WishlistEntry, productID string) int {
	for i, e := range entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

func ids(entries []model.WishlistEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ProductID)
	}
	return out
}

func cloneEntries(entries []model.WishlistEntry) []model.WishlistEntry {
	out := make([]model.WishlistEntry, len(entries))
	for i, e := range entries {
		if e.Price != nil {
			p := *e.Price
			e.Price = &p
		}
		out[i] = e
	}
	return out
}
