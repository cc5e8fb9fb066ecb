package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront-sync/internal/gateway/memgateway"
	"storefront-sync/internal/model"
	"storefront-sync/internal/persist"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var moneyComparer = cmp.Comparer(func(a, b model.Money) bool { return a.Equal(b) })

type fixture struct {
	backend *memgateway.Backend
	store   *persist.Memory
	sync    *Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := memgateway.New(memgateway.WithTaxRate(0.08))
	b.AddProduct(model.Product{ID: "prod-x", Handle: "x", Title: "X"}, "merch-x", "12.50")
	b.AddProduct(model.Product{ID: "prod-y", Handle: "y", Title: "Y"}, "merch-y", "4.00")
	store := persist.NewMemory()
	return &fixture{backend: b, store: store, sync: New(b, store, nil)}
}

func TestAddLine_EmptyCart(t *testing.T) {
	f := newFixture(t)

	cart, err := f.sync.AddLine(context.Background(), "merch-x", 2)
	require.NoError(t, err)

	require.Len(t, cart.Lines, 1)
	line := cart.Lines[0]
	assert.Equal(t, 2, line.Quantity)
	assert.True(t, line.LineTotal.Equal(model.MustMoney("25.00", "USD")), "line total = %s", line.LineTotal)
	assert.True(t, cart.Totals.Total.Equal(model.MustMoney("27.00", "USD")), "total = %s", cart.Totals.Total)

	stored, ok := f.store.Get("cart:handle")
	require.True(t, ok, "handle should be persisted")
	assert.Equal(t, string(cart.Handle), stored)

	v := f.sync.View()
	assert.Equal(t, StateReady, v.State)
	assert.True(t, v.OpenPanel)
	assert.False(t, v.Pending)
}

func TestAddLine_RejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)

	_, err := f.sync.AddLine(context.Background(), "merch-x", 0)
	assert.Equal(t, model.KindRemoteValidation, model.KindOf(err))
	assert.Zero(t, f.backend.CallCount(memgateway.OpCreateCart))
}

func TestRemoveLine_AbsentLineIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.sync.AddLine(ctx, "merch-x", 1)
	require.NoError(t, err)
	beforeJSON, err := json.Marshal(before)
	require.NoError(t, err)

	after, err := f.sync.RemoveLine(ctx, "gid://memgateway/CartLine/never-existed")
	require.NoError(t, err)

	afterJSON, err := json.Marshal(after)
	require.NoError(t, err)
	assert.Equal(t, string(beforeJSON), string(afterJSON))
	if diff := cmp.Diff(before, f.sync.View().Cart, moneyComparer); diff != "" {
		t.Errorf("mirror changed (-before +after):\n%s", diff)
	}
	assert.Nil(t, f.sync.View().LastError)
}

func TestRemoveLine_NoCart(t *testing.T) {
	f := newFixture(t)

	cart, err := f.sync.RemoveLine(context.Background(), "any")
	require.NoError(t, err)
	assert.Nil(t, cart)
	assert.Zero(t, f.backend.CallCount(memgateway.OpRemoveCartLines))
}

func TestUpdateToZero_EquivalentToRemove(t *testing.T) {
	ctx := context.Background()
	seed := func(f *fixture) string {
		_, err := f.sync.AddLine(ctx, "merch-x", 3)
		require.NoError(t, err)
		cart, err := f.sync.AddLine(ctx, "merch-y", 1)
		require.NoError(t, err)
		return cart.Lines[0].LineID
	}

	viaUpdate := newFixture(t)
	lineA := seed(viaUpdate)
	gotUpdate, err := viaUpdate.sync.UpdateLineQuantity(ctx, lineA, 0)
	require.NoError(t, err)

	viaRemove := newFixture(t)
	lineB := seed(viaRemove)
	gotRemove, err := viaRemove.sync.RemoveLine(ctx, lineB)
	require.NoError(t, err)

	opts := cmp.Options{
		moneyComparer,
		cmpopts.IgnoreFields(model.Cart{}, "Handle", "CheckoutURL"),
		cmpopts.IgnoreFields(model.CartLine{}, "LineID"),
	}
	if diff := cmp.Diff(gotRemove, gotUpdate, opts); diff != "" {
		t.Errorf("update(0) differs from remove (-remove +update):\n%s", diff)
	}
	assert.Zero(t, viaUpdate.backend.CallCount(memgateway.OpUpdateCartLine))
}

func TestUpdateLineQuantity_SerializedPerLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart, err := f.sync.AddLine(ctx, "merch-x", 3)
	require.NoError(t, err)
	lineID := cart.Lines[0].LineID

	gate := make(chan struct{})
	var updates atomic.Int32
	f.backend.SetHook(func(ctx context.Context, op string, _ []string) error {
		if op == memgateway.OpUpdateCartLine && updates.Add(1) == 1 {
			<-gate
		}
		return nil
	})

	var wg sync.WaitGroup
	results := make([]*model.Cart, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = f.sync.UpdateLineQuantity(ctx, lineID, 2)
	}()
	require.Eventually(t, func() bool { return updates.Load() == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = f.sync.UpdateLineQuantity(ctx, lineID, 1)
	}()
	require.Eventually(t, func() bool { return f.sync.queue.Len(queueLinePrefix+lineID) == 2 }, time.Second, time.Millisecond)

	// The second call waits in the queue instead of reaching the backend.
	assert.Equal(t, int32(1), updates.Load())
	assert.Equal(t, []string{lineID}, f.sync.View().PendingLines)
	assert.True(t, f.sync.View().Pending)

	close(gate)
	wg.Wait()

	var quantities []string
	for _, c := range f.backend.Calls() {
		if c.Op == memgateway.OpUpdateCartLine {
			quantities = append(quantities, c.Args[2])
		}
	}
	assert.Equal(t, []string{"2", "1"}, quantities)

	require.NotNil(t, results[1])
	final := f.sync.View().Cart
	require.Len(t, final.Lines, 1)
	assert.Equal(t, 1, final.Lines[0].Quantity)
	if diff := cmp.Diff(results[1], final, moneyComparer); diff != "" {
		t.Errorf("mirror should equal second response (-want +got):\n%s", diff)
	}
	assert.Empty(t, f.sync.View().PendingLines)
}

func TestAddLine_StaleHandleRecreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.sync.AddLine(ctx, "merch-x", 1)
	require.NoError(t, err)
	f.backend.DeleteCart(first.Handle)

	cart, err := f.sync.AddLine(ctx, "merch-y", 2)
	require.NoError(t, err)

	assert.NotEqual(t, first.Handle, cart.Handle)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "merch-y", cart.Lines[0].MerchandiseID)
	assert.Equal(t, 2, f.backend.CallCount(memgateway.OpCreateCart))

	stored, _ := f.store.Get("cart:handle")
	assert.Equal(t, string(cart.Handle), stored)
}

func TestAddLine_NotFoundValidationRecreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.sync.AddLine(ctx, "merch-x", 1)
	require.NoError(t, err)
	f.backend.DeleteCart(first.Handle)
	f.backend.FailNext(memgateway.OpAddCartLines, model.NewValidationError("NOT_FOUND", "not found"))

	cart, err := f.sync.AddLine(ctx, "merch-y", 2)
	require.NoError(t, err)

	assert.NotEqual(t, first.Handle, cart.Handle)
	assert.Equal(t, cart.Handle, f.sync.Handle())
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "merch-y", cart.Lines[0].MerchandiseID)
	assert.Equal(t, 2, f.backend.CallCount(memgateway.OpCreateCart))
}

func TestHandleGone(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"stale handle kind", model.NewStaleHandleError("gid://cart/1"), true},
		{"not found code", model.NewValidationError("NOT_FOUND", ""), true},
		{"bare not found", model.NewValidationError("INVALID", "not found"), true},
		{"cart does not exist", model.NewValidationError("INVALID", "The specified cart does not exist."), true},
		{"missing line", model.NewValidationError("NOT_FOUND", "line not found: l-1"), false},
		{"missing merchandise", model.NewValidationError("INVALID", "merchandise m-1 does not exist"), false},
		{"other validation", model.NewValidationError("INVALID", "quantity must be at least 1"), false},
		{"network", model.NewNetworkError("cart", errors.New("reset")), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, handleGone(tt.err))
		})
	}
}

func TestApply_IgnoresSnapshotOfReplacedCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart, err := f.sync.AddLine(ctx, "merch-x", 1)
	require.NoError(t, err)

	// A response for a cart that was replaced arrives late.
	f.sync.apply(&model.Cart{Handle: "gid://memgateway/Cart/old", TotalQuantity: 7})

	assert.Equal(t, cart.Handle, f.sync.Handle())
	stored, _ := f.store.Get("cart:handle")
	assert.Equal(t, string(cart.Handle), stored)
	assert.Equal(t, 1, f.sync.View().Cart.TotalQuantity)
}

func TestAddLine_StaleReplayFailsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.AddLine(ctx, "merch-x", 1)
	require.NoError(t, err)

	f.backend.FailNext(memgateway.OpAddCartLines, model.NewStaleHandleError("old"))
	f.backend.FailNext(memgateway.OpAddCartLines, model.NewValidationError("INVALID", "merchandise is sold out"))

	_, err = f.sync.AddLine(ctx, "merch-x", 1)
	var re *model.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "merchandise is sold out", re.Message)
	assert.Equal(t, 3, f.backend.CallCount(memgateway.OpAddCartLines))
}

func TestNetworkFailure_KeepsMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart, err := f.sync.AddLine(ctx, "merch-x", 2)
	require.NoError(t, err)
	lineID := cart.Lines[0].LineID

	f.backend.FailNext(memgateway.OpUpdateCartLine, model.NewNetworkError("memgateway", errors.New("connection reset")))

	_, err = f.sync.UpdateLineQuantity(ctx, lineID, 5)
	require.Error(t, err)
	assert.Equal(t, model.KindNetwork, model.KindOf(err))

	v := f.sync.View()
	assert.Equal(t, StateError, v.State)
	require.NotNil(t, v.LastError)
	assert.True(t, v.LastError.Retryable())
	if diff := cmp.Diff(cart, v.Cart, moneyComparer); diff != "" {
		t.Errorf("mirror changed after network failure:\n%s", diff)
	}

	// Retrying the same operation succeeds and clears the error.
	cart, err = f.sync.UpdateLineQuantity(ctx, lineID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Lines[0].Quantity)
	assert.Equal(t, StateReady, f.sync.View().State)
}

func TestConcurrentFirstAdds_ShareOneCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gate := make(chan struct{})
	var creates atomic.Int32
	f.backend.SetHook(func(ctx context.Context, op string, _ []string) error {
		if op == memgateway.OpCreateCart && creates.Add(1) == 1 {
			<-gate
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sync.AddLine(ctx, "merch-x", 1)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return f.sync.queue.Len(queueHandle) == 2 }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, f.backend.CartCount())
	assert.Equal(t, int32(1), creates.Load())
	v := f.sync.View()
	require.Len(t, v.Cart.Lines, 1)
	assert.Equal(t, 2, v.Cart.Lines[0].Quantity)
}

func TestHydrate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart, err := f.sync.AddLine(ctx, "merch-x", 1)
	require.NoError(t, err)

	t.Run("restores persisted cart", func(t *testing.T) {
		reloaded := New(f.backend, f.store, nil)
		assert.Equal(t, StateEmpty, reloaded.View().State)

		require.NoError(t, reloaded.Hydrate(ctx))
		v := reloaded.View()
		assert.Equal(t, StateReady, v.State)
		if diff := cmp.Diff(cart, v.Cart, moneyComparer); diff != "" {
			t.Errorf("hydrated cart differs:\n%s", diff)
		}
	})

	t.Run("network failure keeps handle", func(t *testing.T) {
		f.backend.FailNext(memgateway.OpFetchCart, model.NewNetworkError("memgateway", errors.New("offline")))
		reloaded := New(f.backend, f.store, nil)

		err := reloaded.Hydrate(ctx)
		assert.Equal(t, model.KindNetwork, model.KindOf(err))
		assert.Equal(t, cart.Handle, reloaded.Handle())
		assert.Equal(t, StateError, reloaded.View().State)

		require.NoError(t, reloaded.Refresh(ctx))
		assert.Equal(t, StateReady, reloaded.View().State)
	})

	t.Run("stale handle discarded", func(t *testing.T) {
		f.backend.DeleteCart(cart.Handle)
		reloaded := New(f.backend, f.store, nil)

		require.NoError(t, reloaded.Hydrate(ctx))
		assert.Equal(t, StateEmpty, reloaded.View().State)
		assert.Empty(t, reloaded.Handle())
		_, ok := f.store.Get("cart:handle")
		assert.False(t, ok)
	})
}

func TestSubscribe_SeesMutatingThenReady(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var states []State
	unsubscribe := f.sync.Subscribe(func(v View) {
		mu.Lock()
		states = append(states, v.State)
		mu.Unlock()
	})

	_, err := f.sync.AddLine(context.Background(), "merch-x", 1)
	require.NoError(t, err)
	unsubscribe()

	_, err = f.sync.AddLine(context.Background(), "merch-y", 1)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, StateMutating, states[0])
	assert.Equal(t, StateReady, states[len(states)-1])
	assert.Len(t, states, 2)
}
