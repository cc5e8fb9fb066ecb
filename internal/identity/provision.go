package identity

import (
	"context"
	"time"

	"storefront-sync/internal/model"
	"storefront-sync/internal/persist"
)

// ProvisionState is a ledger state for one federated email.
type ProvisionState string

const (
	ProvisionUnattempted     ProvisionState = "unattempted"
	ProvisionDone            ProvisionState = "done"
	ProvisionFailedRetryable ProvisionState = "failed-retryable"
)

// ProvisionEntry is the durable ledger record, stored as JSON under
// identity:provision:<lower-cased email>.
type ProvisionEntry struct {
	State      ProvisionState `json:"state"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"lastError,omitempty"`
	CustomerID string         `json:"customerId,omitempty"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Provisioning returns the ledger entry for email.
func (r *Reconciler) Provisioning(email string) ProvisionEntry {
	entry := ProvisionEntry{State: ProvisionUnattempted}
	key := provisionNS + model.NormalizeEmail(email)
	if _, err := persist.GetJSON(r.store, key, &entry); err != nil {
		r.logger.Warn("unreadable provisioning ledger entry", "key", key, "error", err)
		return ProvisionEntry{State: ProvisionUnattempted}
	}
	return entry
}

// provision creates a passwordless backend customer for sess unless the
// ledger says it was already done. Calls for one email run one at a time.
func (r *Reconciler) provision(ctx context.Context, sess *FederatedSession) ProvisionEntry {
	email := model.NormalizeEmail(sess.Email)

	release, err := r.queue.Acquire(ctx, email)
	if err != nil {
		return r.Provisioning(email)
	}
	defer release()

	entry := r.Provisioning(email)
	if entry.State == ProvisionDone {
		return entry
	}

	first, last := sess.FirstName, sess.LastName
	if first == "" && last == "" {
		first, last = splitName(sess.Name)
	}

	customer, err := r.backend.CreateCustomer(ctx, model.CustomerInput{
		Email:     sess.Email,
		FirstName: first,
		LastName:  last,
	})
	entry.Attempts++
	entry.UpdatedAt = r.now()

	switch {
	case err == nil:
		entry.State = ProvisionDone
		entry.LastError = ""
		entry.CustomerID = customer.ID
		r.logger.Info("provisioned federated customer", "attempts", entry.Attempts)
	case model.IsAlreadyExists(err):
		entry.State = ProvisionDone
		entry.LastError = ""
		r.logger.Info("federated customer already exists", "attempts", entry.Attempts)
	default:
		entry.State = ProvisionFailedRetryable
		entry.LastError = model.Normalize(err).Message
		r.logger.Warn("provisioning federated customer failed", "attempts", entry.Attempts, "error", err)
	}

	if err := persist.SetJSON(r.store, provisionNS+email, entry); err != nil {
		r.logger.Error("persisting provisioning ledger", "error", err)
	}
	return entry
}
