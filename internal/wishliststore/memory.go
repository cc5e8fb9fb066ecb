package wishliststore

import (
	"context"
	"sync"

	"storefront-sync/internal/gateway"
	"storefront-sync/internal/model"
	"storefront-sync/internal/wishlist"
)

// Memory is an in-process RemoteStore.
type Memory struct {
	catalog gateway.CatalogAPI

	mu       sync.Mutex
	records  map[string][]string
	failures map[string][]error
	calls    map[string]int
}

// Operation names for FailNext and CallCount.
const (
	OpList   = "List"
	OpAdd    = "Add"
	OpRemove = "Remove"
)

// NewMemory creates an empty store. catalog may be nil.
func NewMemory(catalog gateway.CatalogAPI) *Memory {
	return &Memory{
		catalog:  catalog,
		records:  make(map[string][]string),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// FailNext makes the next call of op fail with err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// CallCount returns how many times op was invoked.
func (m *Memory) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Seed replaces owner's record.
func (m *Memory) Seed(owner string, productIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[model.NormalizeEmail(owner)] = append([]string(nil), productIDs...)
}

func (m *Memory) enter(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	if queued := m.failures[op]; len(queued) > 0 {
		m.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (m *Memory) List(ctx context.Context, owner string) ([]string, error) {
	if err := m.enter(OpList); err != nil {
		return nil, err
	}
	if err := validate(owner, "-"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.records[model.NormalizeEmail(owner)]...), nil
}

func (m *Memory) Add(ctx context.Context, owner, productID string) error {
	if err := m.enter(OpAdd); err != nil {
		return err
	}
	if err := validate(owner, productID); err != nil {
		return err
	}
	if err := checkAvailable(ctx, m.catalog, productID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.NormalizeEmail(owner)
	for _, id := range m.records[key] {
		if id == productID {
			return nil
		}
	}
	m.records[key] = append(m.records[key], productID)
	return nil
}

func (m *Memory) Remove(ctx context.Context, owner, productID string) error {
	if err := m.enter(OpRemove); err != nil {
		return err
	}
	if err := validate(owner, productID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.NormalizeEmail(owner)
	ids := m.records[key]
	for i, id := range ids {
		if id == productID {
			m.records[key] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Verify Memory implements RemoteStore interface at compile time.
var _ wishlist.RemoteStore = (*Memory)(nil)
