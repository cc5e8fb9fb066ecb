package wishlist_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront-sync/internal/gateway/memgateway"
	"storefront-sync/internal/identity"
	"storefront-sync/internal/model"
	"storefront-sync/internal/persist"
	"storefront-sync/internal/wishlist"
	"storefront-sync/internal/wishliststore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const owner = "shopper@example.test"

type fixture struct {
	backend *memgateway.Backend
	remote  *wishliststore.Memory
	store   *persist.Memory
	sync    *wishlist.Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := memgateway.New()
	for _, p := range []struct{ id, title, price string }{
		{"prod-1", "Lamp", "40.00"},
		{"prod-2", "Rug", "120.00"},
		{"prod-3", "Vase", "25.00"},
	} {
		b.AddProduct(model.Product{ID: p.id, Handle: p.id, Title: p.title}, "var-"+p.id, p.price)
	}
	remote := wishliststore.NewMemory(b)
	store := persist.NewMemory()
	s := wishlist.New(remote, b, store, nil)
	t.Cleanup(s.Close)
	return &fixture{backend: b, remote: remote, store: store, sync: s}
}

func entry(id string) model.WishlistEntry {
	return model.WishlistEntry{ProductID: id, Title: "local " + id}
}

func entryIDs(entries []model.WishlistEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ProductID)
	}
	return out
}

func TestAnonymous_LocalOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sync.Add(ctx, entry("prod-1")))
	require.NoError(t, f.sync.Add(ctx, entry("prod-1")))
	f.sync.Wait()

	assert.True(t, f.sync.Contains("prod-1"))
	assert.Len(t, f.sync.Entries(), 1)
	assert.NotZero(t, f.sync.Entries()[0].AddedAtEpochMillis)
	assert.Zero(t, f.remote.CallCount(wishliststore.OpAdd))

	_, ok := f.store.Get("wishlist:entries")
	assert.True(t, ok, "local set must be persisted")

	reloaded := wishlist.New(f.remote, f.backend, f.store, nil)
	assert.True(t, reloaded.Contains("prod-1"))
}

func TestAdd_RequiresProductID(t *testing.T) {
	f := newFixture(t)
	err := f.sync.Add(context.Background(), model.WishlistEntry{})
	assert.Equal(t, model.KindRemoteValidation, model.KindOf(err))
}

func TestMerge_PushesLocalOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sync.Add(ctx, entry("prod-1")))

	report, err := f.sync.Merge(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, []string{"prod-1"}, report.Pushed)
	remote, err := f.remote.List(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1"}, remote)
	assert.True(t, f.sync.Contains("prod-1"))
	assert.Equal(t, "local prod-1", f.sync.Entries()[0].Title, "local metadata survives merge")
}

func TestMerge_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.Seed(owner, "prod-2", "prod-3")
	require.NoError(t, f.sync.Add(ctx, entry("prod-1")))
	require.NoError(t, f.sync.Add(ctx, entry("prod-3")))

	_, err := f.sync.Merge(ctx, owner)
	require.NoError(t, err)
	first := f.sync.Entries()

	report, err := f.sync.Merge(ctx, owner)
	require.NoError(t, err)
	second := f.sync.Entries()

	assert.Equal(t, first, second)
	assert.Empty(t, report.Pushed)
	assert.Empty(t, report.Pulled)
	assert.ElementsMatch(t, []string{"prod-1", "prod-2", "prod-3"}, entryIDs(second))
}

func TestMerge_PrunesRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sync.Add(ctx, entry("prod-1")))
	require.NoError(t, f.sync.Add(ctx, entry("prod-2")))
	f.backend.Delist("prod-2")

	report, err := f.sync.Merge(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, []string{"prod-2"}, report.Pruned)
	assert.False(t, f.sync.Contains("prod-2"))
	assert.True(t, f.sync.Contains("prod-1"))
}

func TestMerge_NetworkFailureQueuesAndReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sync.Add(ctx, entry("prod-1")))
	f.remote.FailNext(wishliststore.OpAdd, model.NewNetworkError("memory", errors.New("unavailable")))

	report, err := f.sync.Merge(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1"}, report.Queued)
	assert.True(t, f.sync.Contains("prod-1"), "transient failures are not pruned")
	assert.Len(t, f.sync.Outbox(), 1)

	_, ok := f.store.Get("wishlist:outbox")
	assert.True(t, ok, "outbox must be durable")

	// A later load replays the outbox.
	reloaded := wishlist.New(f.remote, f.backend, f.store, nil)
	_, err = reloaded.Merge(ctx, owner)
	require.NoError(t, err)

	assert.Empty(t, reloaded.Outbox())
	remote, _ := f.remote.List(ctx, owner)
	assert.Equal(t, []string{"prod-1"}, remote)
}

func TestMerge_ListFailureLeavesLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sync.Add(ctx, entry("prod-1")))
	f.remote.FailNext(wishliststore.OpList, model.NewNetworkError("memory", errors.New("down")))

	_, err := f.sync.Merge(ctx, owner)
	assert.Equal(t, model.KindNetwork, model.KindOf(err))
	assert.Equal(t, []string{"prod-1"}, entryIDs(f.sync.Entries()))
}

func TestView_BackfillsRemoteOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.Seed(owner, "prod-3")

	report, err := f.sync.Merge(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-3"}, report.Pulled)

	bare := f.sync.Entries()
	require.Len(t, bare, 1)
	assert.False(t, bare[0].HasMetadata(), "merge does not fetch metadata")
	assert.Zero(t, f.backend.CallCount(memgateway.OpProductsByID))

	view, err := f.sync.View(ctx)
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "Vase", view[0].Title)
	require.NotNil(t, view[0].Price)
	assert.True(t, view[0].Price.Equal(model.MustMoney("25.00", "USD")))

	// Backfilled metadata is persisted; a second view fetches nothing.
	calls := f.backend.CallCount(memgateway.OpProductsByID)
	_, err = f.sync.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls, f.backend.CallCount(memgateway.OpProductsByID))
}

// fakeProvider reports one federated session until signed out.
type fakeProvider struct {
	session *identity.FederatedSession
}

func (p *fakeProvider) Session(ctx context.Context) (*identity.FederatedSession, error) {
	return p.session, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.session = nil
	return nil
}

func TestFederatedLogin_MergesLocalWishlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	provider := &fakeProvider{}
	r := identity.New(f.backend, provider, f.store, nil)
	f.sync.AttachIdentity(r)
	r.Resolve(ctx)

	// Anonymous add stays local.
	require.NoError(t, f.sync.Add(ctx, entry("prod-1")))
	f.sync.Wait()
	assert.Zero(t, f.remote.CallCount(wishliststore.OpAdd))

	provider.session = &identity.FederatedSession{UID: "uid-9", Email: "Shopper@Example.test", Name: "Shop Per"}
	r.Resolve(ctx)
	f.sync.Wait()

	remote, err := f.remote.List(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1"}, remote)
	assert.True(t, f.sync.Contains("prod-1"))
	assert.Equal(t, owner, f.sync.Owner())

	// Re-resolving with the same identity does not merge again.
	lists := f.remote.CallCount(wishliststore.OpList)
	r.Resolve(ctx)
	f.sync.Wait()
	assert.Equal(t, lists, f.remote.CallCount(wishliststore.OpList))
}

func TestPropagation_WhileSignedIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.RegisterCustomer(model.CustomerInput{Email: owner, Password: "pw"})

	r := identity.New(f.backend, nil, f.store, nil)
	f.sync.AttachIdentity(r)
	require.True(t, r.Login(ctx, owner, "pw").Success)
	f.sync.Wait()

	require.NoError(t, f.sync.Add(ctx, entry("prod-2")))
	f.sync.Wait()
	remote, _ := f.remote.List(ctx, owner)
	assert.Equal(t, []string{"prod-2"}, remote)

	require.NoError(t, f.sync.Remove(ctx, "prod-2"))
	f.sync.Wait()
	remote, _ = f.remote.List(ctx, owner)
	assert.Empty(t, remote)
	assert.False(t, f.sync.SyncInProgress())

	t.Run("failure is a warning and queued", func(t *testing.T) {
		f.remote.FailNext(wishliststore.OpAdd, model.NewNetworkError("memory", errors.New("reset")))
		require.NoError(t, f.sync.Add(ctx, entry("prod-3")))
		f.sync.Wait()

		assert.True(t, f.sync.Contains("prod-3"), "local truth wins")
		require.NotNil(t, f.sync.LastWarning())
		assert.Equal(t, model.KindNetwork, f.sync.LastWarning().Kind)
		assert.Len(t, f.sync.Outbox(), 1)
	})

	t.Run("logout stops propagation", func(t *testing.T) {
		require.NoError(t, r.Logout(ctx))
		adds := f.remote.CallCount(wishliststore.OpAdd)

		require.NoError(t, f.sync.Add(ctx, entry("prod-1")))
		f.sync.Wait()

		assert.Equal(t, adds, f.remote.CallCount(wishliststore.OpAdd))
		assert.Empty(t, f.sync.Owner())
		assert.True(t, f.sync.Contains("prod-1"))
	})
}

func TestMerge_QueuedRemoveIsNotUndone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.Seed(owner, "prod-1")

	_, err := f.sync.Merge(ctx, owner)
	require.NoError(t, err)
	require.True(t, f.sync.Contains("prod-1"))

	// Sign in so the remove propagates, and make the propagation fail.
	f.backend.RegisterCustomer(model.CustomerInput{Email: owner, Password: "pw"})
	r := identity.New(f.backend, nil, f.store, nil)
	f.sync.AttachIdentity(r)
	require.True(t, r.Login(ctx, owner, "pw").Success)
	f.sync.Wait()

	f.remote.FailNext(wishliststore.OpRemove, model.NewNetworkError("memory", errors.New("reset")))
	require.NoError(t, f.sync.Remove(ctx, "prod-1"))
	f.sync.Wait()
	require.Len(t, f.sync.Outbox(), 1)

	f.remote.FailNext(wishliststore.OpRemove, model.NewNetworkError("memory", errors.New("reset")))
	_, err = f.sync.Merge(ctx, owner)
	require.NoError(t, err)

	assert.False(t, f.sync.Contains("prod-1"), "pending remove must not be pulled back")
	assert.Len(t, f.sync.Outbox(), 1)
}

// signedIn is an identity source that is always authenticated as owner.
type signedIn struct{}

func (signedIn) Current() identity.State {
	return identity.State{
		Status:   identity.StatusAuthenticated,
		Identity: &model.CustomerIdentity{ID: "cust-1", Email: owner},
	}
}

func (signedIn) Subscribe(fn func(prev, next identity.State)) func() { return func() {} }

// slowRemote delays adds so a later remove would overtake them if turns
// were taken in scheduling order. It records the order calls arrive in.
type slowRemote struct {
	*wishliststore.Memory

	mu  sync.Mutex
	ops []string
}

func (r *slowRemote) Add(ctx context.Context, owner, productID string) error {
	time.Sleep(time.Millisecond)
	r.record("add " + productID)
	return r.Memory.Add(ctx, owner, productID)
}

func (r *slowRemote) Remove(ctx context.Context, owner, productID string) error {
	r.record("remove " + productID)
	return r.Memory.Remove(ctx, owner, productID)
}

func (r *slowRemote) record(op string) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

func TestPropagation_FollowsLocalMutationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	remote := &slowRemote{Memory: f.remote}
	s := wishlist.New(remote, f.backend, persist.NewMemory(), nil)
	t.Cleanup(s.Close)
	s.AttachIdentity(signedIn{})
	s.Wait()

	for range 50 {
		require.NoError(t, s.Add(ctx, entry("prod-1")))
		require.NoError(t, s.Remove(ctx, "prod-1"))
		s.Wait()

		ids, err := remote.List(ctx, owner)
		require.NoError(t, err)
		require.Empty(t, ids, "remote must end without the removed product")
		require.False(t, s.Contains("prod-1"))
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()
	for i := 0; i+1 < len(remote.ops); i += 2 {
		assert.Equal(t, []string{"add prod-1", "remove prod-1"}, remote.ops[i:i+2])
	}
}

// flakyStore fails writes while failing is set.
type flakyStore struct {
	*persist.Memory
	failing bool
}

func (s *flakyStore) Set(key, value string) error {
	if s.failing {
		return errors.New("disk full")
	}
	return s.Memory.Set(key, value)
}

func TestLocalMutation_PersistFailureLeavesSetUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := &flakyStore{Memory: persist.NewMemory()}
	s := wishlist.New(f.remote, f.backend, store, nil)
	t.Cleanup(s.Close)

	require.NoError(t, s.Add(ctx, entry("prod-1")))

	store.failing = true
	err := s.Add(ctx, entry("prod-2"))
	require.Error(t, err)
	assert.False(t, s.Contains("prod-2"))

	err = s.Remove(ctx, "prod-1")
	require.Error(t, err)
	assert.True(t, s.Contains("prod-1"))
	assert.Equal(t, []string{"prod-1"}, entryIDs(s.Entries()))

	store.failing = false
	reloaded := wishlist.New(f.remote, f.backend, store, nil)
	assert.Equal(t, entryIDs(s.Entries()), entryIDs(reloaded.Entries()))
}
