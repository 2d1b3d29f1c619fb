package cartstore

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yungbote/storefront-backend/internal/commerce"
	"github.com/yungbote/storefront-backend/internal/commerce/mock"
	"github.com/yungbote/storefront-backend/internal/domain/cart"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCatalog map[string]cart.PriceHint

func (c fakeCatalog) PriceHint(id string) (cart.PriceHint, bool) {
	h, ok := c[id]
	return h, ok
}

var prices = map[string]cart.PriceHint{
	"ABC": {UnitPrice: 34900, Display: cart.DisplayMeta{ProductTitle: "Ashwagandha Gummies"}},
	"XYZ": {UnitPrice: 129900},
}

func newStore(t *testing.T, b *mock.Backend, opts Options) *Store {
	t.Helper()
	opts.Client = b
	if opts.Catalog == nil {
		opts.Catalog = fakeCatalog(prices)
	}
	if opts.MutationTimeout == 0 {
		opts.MutationTimeout = time.Second
	}
	s := New(opts)
	require.NoError(t, s.Init(context.Background(), nil))
	t.Cleanup(s.Teardown)
	return s
}

func wait(t *testing.T, p Pending) cart.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := p.Wait(ctx)
	require.NoError(t, err)
	return snap
}

// gate blocks a mock operation until released or the call's context ends.
func gate(b *mock.Backend, op string) (release func()) {
	ch := make(chan struct{})
	b.SetHook(op, func(ctx context.Context) error {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func seeded(qty int) []cart.LineItem {
	return []cart.LineItem{{
		Key: "ABC:1", VariantID: "ABC", Quantity: qty,
		UnitPrice: 34900, LineTotal: cart.Money(qty) * 34900, OriginalLineTotal: cart.Money(qty) * 34900,
	}}
}

func TestAddToCartReconciles(t *testing.T) {
	b := mock.New(prices, "INR")
	s := newStore(t, b, Options{})

	snap := wait(t, s.AddToCart("ABC", 2, nil))
	assert.Equal(t, 2, snap.ItemCount)
	assert.Equal(t, cart.Money(69800), snap.TotalPrice)
	assert.False(t, snap.IsSyncing)
	require.Len(t, snap.Items, 1)
	assert.False(t, snap.Items[0].Pending(), "line still carries a provisional key")
	assert.True(t, snap.Consistent())
	assert.Nil(t, snap.Notice)
}

func TestAddOpensCartSynchronously(t *testing.T) {
	b := mock.New(prices, "INR")
	s := newStore(t, b, Options{})
	release := gate(b, commerce.OpAdd)

	p := s.AddToCart("ABC", 2, nil)
	now := s.Snapshot()
	assert.True(t, now.IsOpen)
	assert.True(t, now.IsSyncing)
	assert.Equal(t, 2, now.ItemCount, "optimistic projection not applied")
	assert.Equal(t, cart.Money(69800), now.TotalPrice)

	release()
	final := wait(t, p)
	assert.True(t, final.IsOpen)
	assert.False(t, final.IsSyncing)
}

func TestAddFailureStillOpensCart(t *testing.T) {
	b := mock.New(prices, "INR")
	s := newStore(t, b, Options{})
	b.FailStatus(commerce.OpAdd, http.StatusInternalServerError)

	snap := wait(t, s.AddToCart("ABC", 1, nil))
	assert.True(t, snap.IsOpen)
	assert.Equal(t, 0, snap.ItemCount)
}

func TestUpdateQuantityToZeroRemovesLine(t *testing.T) {
	b := mock.New(prices, "INR")
	b.Seed("tok", seeded(2))
	s := newStore(t, b, Options{Token: "tok"})
	require.Equal(t, 2, s.Snapshot().ItemCount)

	snap := wait(t, s.UpdateQuantity("ABC:1", 0))
	assert.Empty(t, snap.Items)
	assert.Equal(t, 0, snap.ItemCount)
	assert.Equal(t, cart.Money(0), snap.TotalPrice)
	assert.Nil(t, snap.Notice)

	b.Seed("tok", seeded(3))
	snap = wait(t, s.Refresh())
	require.Len(t, snap.Items, 1)
	snap = wait(t, s.RemoveFromCart("ABC:1"))
	assert.Empty(t, snap.Items)
}

func TestFailedAddRollsBackToBackendState(t *testing.T) {
	b := mock.New(prices, "INR")
	b.Seed("tok", seeded(1))
	s := newStore(t, b, Options{Token: "tok"})
	before := s.Snapshot()

	updates, cancel := s.Subscribe()
	defer cancel()
	<-updates

	b.FailStatus(commerce.OpAdd, http.StatusInternalServerError)
	snap := wait(t, s.AddToCart("ABC", 2, map[string]string{cart.AttrPurchaseType: cart.PurchaseSubscribe}))

	assert.Equal(t, before.Items, snap.Items)
	assert.Equal(t, before.ItemCount, snap.ItemCount)
	assert.Equal(t, before.TotalPrice, snap.TotalPrice)
	assert.False(t, snap.IsSyncing)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, cart.NoticeMutationFailed, snap.Notice.Kind)
	assert.Equal(t, 1, b.Calls(commerce.OpAdd))

	optimistic := <-updates
	assert.Equal(t, 3, optimistic.ItemCount, "first publish should be the optimistic projection")
	assert.True(t, optimistic.IsSyncing)
}

func TestFailedMutationAndFetchKeepLastAuthoritative(t *testing.T) {
	b := mock.New(prices, "INR")
	b.Seed("tok", seeded(1))
	s := newStore(t, b, Options{Token: "tok"})
	before := s.Snapshot()

	b.FailNext(commerce.OpChange, errors.New("connection reset"))
	b.FailNext(commerce.OpFetch, errors.New("connection reset"))
	snap := wait(t, s.UpdateQuantity("ABC:1", 4))

	assert.Equal(t, before.Items, snap.Items)
	assert.False(t, snap.IsSyncing)
	require.NotNil(t, snap.Notice)
	assert.True(t, snap.Consistent())
}

func TestClearCartIsIdempotent(t *testing.T) {
	b := mock.New(prices, "INR")
	b.Seed("tok", seeded(3))
	s := newStore(t, b, Options{Token: "tok"})

	first := s.ClearCart()
	second := s.ClearCart()
	wait(t, first)
	snap := wait(t, second)
	assert.Empty(t, snap.Items)
	assert.Equal(t, 0, snap.ItemCount)
	assert.Equal(t, cart.Money(0), snap.TotalPrice)
	assert.Nil(t, snap.Notice)
	assert.Equal(t, 2, b.Calls(commerce.OpClear))
}

func TestRapidIncrementsAreSerialized(t *testing.T) {
	b := mock.New(prices, "INR")
	b.Seed("tok", seeded(1))
	s := newStore(t, b, Options{Token: "tok"})
	release := gate(b, commerce.OpChange)

	q := s.Snapshot().Items[0].Quantity
	first := s.UpdateQuantity("ABC:1", q+1)
	q = s.Snapshot().Items[0].Quantity
	second := s.UpdateQuantity("ABC:1", q+1)
	assert.Equal(t, 3, s.Snapshot().ItemCount)

	release()
	wait(t, first)
	snap := wait(t, second)
	assert.Equal(t, 3, snap.ItemCount)
	assert.Equal(t, cart.Money(3*34900), snap.TotalPrice)
	assert.Equal(t, 2, b.Calls(commerce.OpChange))
	assert.False(t, snap.IsSyncing)
}

func TestMutationTimeoutForcesRefetch(t *testing.T) {
	b := mock.New(prices, "INR")
	b.Seed("tok", seeded(1))
	s := newStore(t, b, Options{Token: "tok", MutationTimeout: 30 * time.Millisecond})
	fetches := b.Calls(commerce.OpFetch)
	release := gate(b, commerce.OpChange)
	defer release()

	snap := wait(t, s.UpdateQuantity("ABC:1", 5))
	assert.False(t, snap.IsSyncing, "spinner stuck after timeout")
	assert.Equal(t, 1, snap.ItemCount)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, fetches+1, b.Calls(commerce.OpFetch))
}

func TestQueuedChangeOnPendingLine(t *testing.T) {
	b := mock.New(prices, "INR")
	s := newStore(t, b, Options{})
	release := gate(b, commerce.OpAdd)

	add := s.AddToCart("ABC", 2, nil)
	view := s.Snapshot()
	require.Len(t, view.Items, 1)
	require.True(t, view.Items[0].Pending())
	change := s.UpdateQuantity(view.Items[0].Key, 5)
	assert.Equal(t, 5, s.Snapshot().ItemCount)

	release()
	wait(t, add)
	snap := wait(t, change)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 5, snap.Items[0].Quantity)
	assert.False(t, snap.Items[0].Pending())
	assert.Nil(t, snap.Notice)
}

func TestPendingLinesOfOneVariantKeepDistinctKeys(t *testing.T) {
	b := mock.New(prices, "INR")
	s := newStore(t, b, Options{})
	release := gate(b, commerce.OpAdd)

	onetime := map[string]string{cart.AttrPurchaseType: cart.PurchaseOneTime}
	monthly := map[string]string{cart.AttrPurchaseType: cart.PurchaseSubscribe, cart.AttrSubscriptionPlan: cart.PlanMonthly}
	first := s.AddToCart("ABC", 1, onetime)
	second := s.AddToCart("ABC", 1, monthly)

	view := s.Snapshot()
	require.Len(t, view.Items, 2)
	assert.True(t, view.Items[0].Pending())
	assert.True(t, view.Items[1].Pending())
	assert.NotEqual(t, view.Items[0].Key, view.Items[1].Key)

	change := s.UpdateQuantity(view.Items[1].Key, 3)
	view = s.Snapshot()
	require.Len(t, view.Items, 2)
	assert.Equal(t, 1, view.Items[0].Quantity)
	assert.Equal(t, 3, view.Items[1].Quantity)

	release()
	wait(t, first)
	wait(t, second)
	snap := wait(t, change)
	require.Len(t, snap.Items, 2)
	assert.Nil(t, snap.Notice)
	for _, it := range snap.Items {
		assert.False(t, it.Pending())
		if cart.SameAttributes(it.Attributes, monthly) {
			assert.Equal(t, 3, it.Quantity)
		} else {
			assert.Equal(t, 1, it.Quantity)
		}
	}
}

// partialAdds answers adds the way the AJAX add endpoint does: no cart, only
// the token.
type partialAdds struct{ *mock.Backend }

func (p partialAdds) AddLine(ctx context.Context, token string, line commerce.AddLine) (commerce.Result, error) {
	res, err := p.Backend.AddLine(ctx, token, line)
	if err != nil {
		return res, err
	}
	return commerce.Result{Token: res.Token, Partial: true}, nil
}

func TestPartialAddWithFailedRefetchIsNotAMutationFailure(t *testing.T) {
	b := mock.New(prices, "INR")
	s := New(Options{Client: partialAdds{b}, Catalog: fakeCatalog(prices), MutationTimeout: time.Second})
	require.NoError(t, s.Init(context.Background(), nil))
	t.Cleanup(s.Teardown)

	b.FailStatus(commerce.OpFetch, http.StatusServiceUnavailable)
	snap := wait(t, s.AddToCart("ABC", 1, nil))
	require.NotNil(t, snap.Notice)
	assert.Equal(t, cart.NoticeSyncFailed, snap.Notice.Kind)
	assert.Equal(t, 1, b.Calls(commerce.OpAdd))
	assert.False(t, snap.IsSyncing)

	snap = wait(t, s.Refresh())
	assert.Nil(t, snap.Notice)
	assert.Equal(t, 1, snap.ItemCount)
	assert.Equal(t, 1, b.Calls(commerce.OpAdd), "add must not be retried")
}

func TestPartialAddAdoptsRefetchedCart(t *testing.T) {
	b := mock.New(prices, "INR")
	s := New(Options{Client: partialAdds{b}, Catalog: fakeCatalog(prices), MutationTimeout: time.Second})
	require.NoError(t, s.Init(context.Background(), nil))
	t.Cleanup(s.Teardown)

	snap := wait(t, s.AddToCart("ABC", 2, nil))
	assert.Nil(t, snap.Notice)
	assert.Equal(t, cart.Money(69800), snap.TotalPrice)
	require.Len(t, snap.Items, 1)
	assert.False(t, snap.Items[0].Pending())
}

func TestRefreshReplacesWholesale(t *testing.T) {
	b := mock.New(prices, "INR")
	b.Seed("tok", seeded(1))
	s := newStore(t, b, Options{Token: "tok"})

	b.Seed("tok", []cart.LineItem{{Key: "XYZ:1", VariantID: "XYZ", Quantity: 2, UnitPrice: 129900, LineTotal: 259800}})
	snap := wait(t, s.Refresh())
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "XYZ:1", snap.Items[0].Key)
	assert.Equal(t, cart.Money(259800), snap.TotalPrice)
}

func TestToggleAndNoticeAreLocal(t *testing.T) {
	b := mock.New(prices, "INR")
	s := newStore(t, b, Options{})
	fetches := b.Calls(commerce.OpFetch)

	s.Open()
	assert.True(t, s.Snapshot().IsOpen)
	s.Toggle()
	assert.False(t, s.Snapshot().IsOpen)
	s.Toggle()
	s.Close()
	assert.False(t, s.Snapshot().IsOpen)

	b.FailStatus(commerce.OpClear, http.StatusBadGateway)
	snap := wait(t, s.ClearCart())
	require.NotNil(t, snap.Notice)
	s.DismissNotice()
	assert.Nil(t, s.Snapshot().Notice)
	assert.Equal(t, fetches+1, b.Calls(commerce.OpFetch), "toggles must not hit the backend")
}

func TestTeardownDrainsQueue(t *testing.T) {
	b := mock.New(prices, "INR")
	s := New(Options{Client: b, Catalog: fakeCatalog(prices), MutationTimeout: time.Second})
	require.NoError(t, s.Init(context.Background(), nil))
	gate(b, commerce.OpAdd)

	updates, _ := s.Subscribe()
	inflight := s.AddToCart("ABC", 1, nil)
	queued := s.AddToCart("XYZ", 1, nil)

	s.Teardown()
	s.Teardown()

	ctx := context.Background()
	_, err := queued.Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = inflight.Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.ClearCart().Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Init(ctx, nil), ErrClosed)

	for range updates {
	}
}

func TestTokenRotationIsReported(t *testing.T) {
	b := mock.New(prices, "INR")
	var (
		mu  sync.Mutex
		got []string
	)
	s := newStore(t, b, Options{OnTokenChange: func(tok string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tok)
	}})

	wait(t, s.AddToCart("ABC", 1, nil))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1, "only the initial assignment is a rotation")
	assert.Equal(t, s.Token(), got[0])
}

func TestInitFromEmbeddedPayload(t *testing.T) {
	b := mock.New(prices, "INR")
	initial := &commerce.Result{Token: "tok", Cart: cart.Snapshot{Items: seeded(2)}}
	s := New(Options{Client: b, Token: "tok"})
	require.NoError(t, s.Init(context.Background(), initial))
	defer s.Teardown()

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.ItemCount)
	assert.Equal(t, cart.Money(69800), snap.TotalPrice)
	assert.Equal(t, 0, b.Calls(commerce.OpFetch))
}

func TestInitFetchFailureLeavesNotice(t *testing.T) {
	b := mock.New(prices, "INR")
	b.FailStatus(commerce.OpFetch, http.StatusServiceUnavailable)
	s := newStore(t, b, Options{})
	snap := s.Snapshot()
	require.NotNil(t, snap.Notice)
	assert.Equal(t, cart.NoticeSyncFailed, snap.Notice.Kind)
	assert.Empty(t, snap.Items)
}

func TestPublishedSnapshotsAreOrderedAndConsistent(t *testing.T) {
	b := mock.New(prices, "INR")
	rec := &recorder{}
	s := newStore(t, b, Options{Publisher: rec})

	wait(t, s.AddToCart("ABC", 1, nil))
	wait(t, s.AddToCart("ABC", 2, nil))
	wait(t, s.ClearCart())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.snaps)
	for i, snap := range rec.snaps {
		assert.True(t, snap.Consistent(), "snapshot %d inconsistent", i)
		if i > 0 {
			assert.Greater(t, snap.Version, rec.snaps[i-1].Version)
		}
	}
	last := rec.snaps[len(rec.snaps)-1]
	assert.False(t, last.IsSyncing)
	assert.Equal(t, 0, last.ItemCount)
}

type recorder struct {
	mu    sync.Mutex
	snaps []cart.Snapshot
}

func (r *recorder) Publish(s cart.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveReconcile(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, op+":"+outcome)
}

func (r *recordingObserver) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func TestObserverSeesEveryReconcile(t *testing.T) {
	b := mock.New(prices, "INR")
	b.Seed("tok", seeded(1))
	obs := &recordingObserver{}
	s := newStore(t, b, Options{Token: "tok", Observer: obs, MutationTimeout: 50 * time.Millisecond})

	wait(t, s.AddToCart("XYZ", 1, nil))
	b.FailStatus(commerce.OpAdd, http.StatusUnprocessableEntity)
	wait(t, s.AddToCart("XYZ", 1, nil))
	release := gate(b, commerce.OpChange)
	wait(t, s.UpdateQuantity("ABC:1", 3))
	release()
	b.FailNext(commerce.OpFetch, errors.New("offline"))
	wait(t, s.Refresh())

	assert.Equal(t, []string{"add:ok", "add:mutation_failed", "change:timeout", "refresh:sync_failed"}, obs.seen())
}
