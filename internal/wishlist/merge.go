package wishlist

import (
	"context"
	"fmt"

	"storefront-sync/internal/identity"
	"storefront-sync/internal/model"
	"storefront-sync/internal/reconcile"
)

// MergeReport describes what one merge changed.
type MergeReport struct {
	Owner  string   `json:"owner"`
	Pushed []string `json:"pushed,omitempty"` // local-only ids added remotely
	Pulled []string `json:"pulled,omitempty"` // remote-only ids added locally
	Pruned []string `json:"pruned,omitempty"` // ids the remote rejected
	Queued []string `json:"queued,omitempty"` // ids kept locally pending a retry
}

// Merge converges the local set with owner's remote record:
//  1. replay the outbox for owner
//  2. fetch the remote ids and push every local-only id
//  3. prune ids the remote rejects; keep ids that failed transiently (queued)
//  4. the local set becomes what the remote reports, plus queued ids
//
// Local metadata is preserved. Remote-only ids arrive without metadata and
// are backfilled by View. Running Merge again without user action changes nothing.
func (s *Synchronizer) Merge(ctx context.Context, owner string) (*MergeReport, error) {
	owner = model.NormalizeEmail(owner)
	if owner == "" {
		return nil, model.NewValidationError("INVALID", "wishlist owner is required")
	}

	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	s.mu.Lock()
	s.merging++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.merging--
		s.mu.Unlock()
	}()

	report := &MergeReport{Owner: owner}
	rejected := s.replayOutbox(ctx, owner)

	remote, err := s.remote.List(ctx, owner)
	if err != nil {
		s.logger.Warn("wishlist merge: listing remote failed", "owner", owner, "error", err)
		return nil, model.Normalize(err)
	}

	snapshot := reconcile.Subtract(ids(s.Entries()), rejected)
	diff := reconcile.DiffIDs(snapshot, remote)

	var queued []string
	for _, id := range diff.LocalOnly {
		err := s.pushOne(ctx, owner, id)
		switch {
		case err == nil:
			report.Pushed = append(report.Pushed, id)
		case model.KindOf(err) == model.KindRemoteValidation:
			rejected = append(rejected, id)
		default:
			queued = append(queued, id)
			s.enqueue(outboxOp{Owner: owner, Op: opAdd, ProductID: id, LastError: model.Normalize(err).Message})
		}
	}
	report.Pruned = reconcile.Dedupe(rejected)
	report.Queued = queued

	after, err := s.remote.List(ctx, owner)
	if err != nil {
		s.logger.Warn("wishlist merge: re-listing remote failed, using expected set", "owner", owner, "error", err)
		after = reconcile.Union(remote, report.Pushed)
	}

	// A remove that is still queued must not be undone by pulling the id back.
	var unpushedRemoves []string
	for _, op := range s.pendingFor(owner) {
		if op.Op == opRemove {
			unpushedRemoves = append(unpushedRemoves, op.ProductID)
		}
	}
	keep := reconcile.Subtract(reconcile.Union(after, queued), unpushedRemoves)

	report.Pulled = s.applyMerge(snapshot, keep, report.Pruned)

	s.logger.Info("wishlist merged",
		"owner", owner,
		"pushed", len(report.Pushed),
		"pulled", len(report.Pulled),
		"pruned", len(report.Pruned),
		"queued", len(report.Queued),
	)
	return report, nil
}

func (s *Synchronizer) pushOne(ctx context.Context, owner, productID string) error {
	release, err := s.queue.Acquire(ctx, productID)
	if err != nil {
		return model.NewNetworkError("wishlist", err)
	}
	defer release()
	return s.remote.Add(ctx, owner, productID)
}

// replayOutbox retries queued propagations for owner. Returns ids whose add
// the remote rejected.
func (s *Synchronizer) replayOutbox(ctx context.Context, owner string) (rejected []string) {
	for _, op := range s.pendingFor(owner) {
		release, err := s.queue.Acquire(ctx, op.ProductID)
		if err != nil {
			return rejected
		}
		err = s.apply(ctx, owner, op.Op, op.ProductID)
		release()

		switch {
		case err == nil:
			s.dropOutbox(owner, op.ProductID)
		case model.KindOf(err) == model.KindRemoteValidation:
			s.dropOutbox(owner, op.ProductID)
			if op.Op == opAdd {
				rejected = append(rejected, op.ProductID)
			}
		default:
			s.logger.Warn("wishlist outbox replay failed",
				"op", op.Op,
				"product_id", op.ProductID,
				"owner", owner,
				"attempts", op.Attempts+1,
				"error", err,
			)
			op.LastError = model.Normalize(err).Message
			s.enqueue(op)
		}
	}
	return rejected
}

// applyMerge rebuilds the local set from keep. snapshot is the local id set
// the merge started from; mutations made locally since then win.
// Returns ids that were added from the remote side.
func (s *Synchronizer) applyMerge(snapshot, keep, pruned []string) (pulled []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entries
	currentIDs := ids(current)
	addedDuring := reconcile.Subtract(currentIDs, snapshot)
	removedDuring := reconcile.Subtract(snapshot, currentIDs)

	final := reconcile.Subtract(reconcile.Union(keep, addedDuring), append(removedDuring, pruned...))
	ordered := reconcile.Union(
		reconcile.Subtract(currentIDs, reconcile.Subtract(currentIDs, final)),
		final,
	)

	now := s.now().UnixMilli()
	entries := make([]model.WishlistEntry, 0, len(ordered))
	for _, id := range ordered {
		if i := indexOf(current, id); i >= 0 {
			entries = append(entries, current[i])
			continue
		}
		entries = append(entries, model.WishlistEntry{ProductID: id, AddedAtEpochMillis: now})
		pulled = append(pulled, id)
	}

	s.entries = entries
	if err := s.persistLocked(); err != nil {
		s.logger.Error("persisting wishlist", "error", err)
	}
	return pulled
}

// === Identity wiring ===

// IdentitySource is the part of identity.Reconciler the synchronizer listens to.
type IdentitySource interface {
	Current() identity.State
	Subscribe(fn func(prev, next identity.State)) (unsubscribe func())
}

// AttachIdentity follows src: signing in starts propagation and runs one
// merge per transition; signing out stops propagation. Local entries are kept.
func (s *Synchronizer) AttachIdentity(src IdentitySource) {
	unsubscribe := src.Subscribe(func(prev, next identity.State) {
		s.onIdentity(ownerOf(prev), ownerOf(next))
	})

	s.mu.Lock()
	s.detach = unsubscribe
	s.mu.Unlock()

	if owner := ownerOf(src.Current()); owner != "" {
		s.onIdentity("", owner)
	}
}

func (s *Synchronizer) onIdentity(prevOwner, nextOwner string) {
	s.mu.Lock()
	if s.owner == nextOwner {
		s.mu.Unlock()
		return
	}
	s.owner = nextOwner
	s.mu.Unlock()

	if nextOwner == "" {
		s.logger.Info("wishlist propagation stopped", "previous_owner", prevOwner)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Merge(context.Background(), nextOwner); err != nil {
			s.mu.Lock()
			s.lastWarning = model.Normalize(err)
			s.mu.Unlock()
		}
	}()
}

func ownerOf(st identity.State) string {
	if !st.Authenticated() {
		return ""
	}
	return model.NormalizeEmail(st.Email())
}

// String renders the report for logs and the CLI.
func (r *MergeReport) String() string {
	return fmt.Sprintf("owner=%s pushed=%d pulled=%d pruned=%d queued=%d",
		r.Owner, len(r.Pushed), len(r.Pulled), len(r.Pruned), len(r.Queued))
}
