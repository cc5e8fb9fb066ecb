package wishlist

import (
	"time"

	"storefront-sync/internal/persist"
)

type opKind string

const (
	opAdd    opKind = "add"
	opRemove opKind = "remove"
)

// outboxOp is a propagation that failed with a retryable error.
// Only the latest intent per (owner, product) is kept.
type outboxOp struct {
	Owner     string    `json:"owner"`
	Op        opKind    `json:"op"`
	ProductID string    `json:"productId"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	QueuedAt  time.Time `json:"queuedAt"`
}

// Outbox returns the queued propagations.
func (s *Synchronizer) Outbox() []outboxOp {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return s.loadOutboxLocked()
}

func (s *Synchronizer) loadOutboxLocked() []outboxOp {
	var ops []outboxOp
	if _, err := persist.GetJSON(s.store, outboxKey, &ops); err != nil {
		s.logger.Warn("discarding unreadable wishlist outbox", "error", err)
		return nil
	}
	return ops
}

func (s *Synchronizer) saveOutboxLocked(ops []outboxOp) {
	var err error
	if len(ops) == 0 {
		err = s.store.Remove(outboxKey)
	} else {
		err = persist.SetJSON(s.store, outboxKey, ops)
	}
	if err != nil {
		s.logger.Error("persisting wishlist outbox", "error", err)
	}
}

// enqueue records op, replacing any earlier op for the same product and owner.
func (s *Synchronizer) enqueue(op outboxOp) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	ops := s.loadOutboxLocked()
	attempts := 0
	kept := ops[:0]
	for _, o := range ops {
		if o.Owner == op.Owner && o.ProductID == op.ProductID {
			attempts = o.Attempts
			continue
		}
		kept = append(kept, o)
	}
	op.Attempts = attempts + 1
	if op.QueuedAt.IsZero() {
		op.QueuedAt = s.now()
	}
	s.saveOutboxLocked(append(kept, op))
}

// dropOutbox forgets any queued op for productID and owner.
func (s *Synchronizer) dropOutbox(owner, productID string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	ops := s.loadOutboxLocked()
	kept := ops[:0]
	for _, o := range ops {
		if o.Owner == owner && o.ProductID == productID {
			continue
		}
		kept = append(kept, o)
	}
	if len(kept) != len(ops) {
		s.saveOutboxLocked(kept)
	}
}

// pendingFor returns the queued ops for owner, removes before adds.
func (s *Synchronizer) pendingFor(owner string) []outboxOp {
	var removes, adds []outboxOp
	for _, o := range s.Outbox() {
		if o.Owner != owner {
			continue
		}
		if o.Op == opRemove {
			removes = append(removes, o)
		} else {
			adds = append(adds, o)
		}
	}
	return append(removes, adds...)
}
