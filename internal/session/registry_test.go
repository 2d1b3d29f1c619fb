package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yungbote/storefront-backend/internal/cartstore"
	"github.com/yungbote/storefront-backend/internal/commerce"
	"github.com/yungbote/storefront-backend/internal/commerce/mock"
	"github.com/yungbote/storefront-backend/internal/domain/cart"
	"github.com/yungbote/storefront-backend/internal/realtime"
	"github.com/yungbote/storefront-backend/internal/realtime/bus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var prices = map[string]cart.PriceHint{"ABC": {UnitPrice: 34900}}

func newRegistry(t *testing.T, opts RegistryOptions) (*Registry, *mock.Backend) {
	t.Helper()
	b := mock.New(prices, "INR")
	opts.Client = b
	r, err := NewRegistry(opts)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, b
}

func settle(t *testing.T, p cartstore.Pending) cart.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := p.Wait(ctx)
	require.NoError(t, err)
	return s
}

func TestGetCoalescesConcurrentCreation(t *testing.T) {
	r, b := newRegistry(t, RegistryOptions{})

	var wg sync.WaitGroup
	stores := make([]*cartstore.Store, 10)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := r.Get(context.Background(), "sess")
			assert.NoError(t, err)
			stores[i] = st
		}(i)
	}
	wg.Wait()

	for _, st := range stores {
		assert.Same(t, stores[0], st)
	}
	assert.Equal(t, 1, b.Calls(commerce.OpFetch))
	assert.Equal(t, 1, r.Len())
}

func TestTokenPersistedAndResumedAfterEvict(t *testing.T) {
	tokens := NewMemoryStore(0)
	r, _ := newRegistry(t, RegistryOptions{Tokens: tokens})
	ctx := context.Background()

	st, err := r.Get(ctx, "sess")
	require.NoError(t, err)
	settle(t, st.AddToCart("ABC", 2, nil))

	tok, err := tokens.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, st.Token(), tok)

	r.Evict("sess")
	assert.Equal(t, 0, r.Len())

	again, err := r.Get(ctx, "sess")
	require.NoError(t, err)
	assert.NotSame(t, st, again)
	assert.Equal(t, 2, again.Snapshot().ItemCount, "remote cart not resumed")
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	r, _ := newRegistry(t, RegistryOptions{IdleTTL: time.Minute})
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := r.Get(ctx, "idle")
	require.NoError(t, err)
	_, err = r.Get(ctx, "streaming")
	require.NoError(t, err)
	release := r.Hold("streaming")

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())

	release()
	release()
	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 0, r.Len())
}

func TestRunForwardsSnapshotsToBus(t *testing.T) {
	b := bus.NewLocalBus()
	r, _ := newRegistry(t, RegistryOptions{Bus: b})

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan realtime.Message, 64)
	require.NoError(t, b.StartForwarder(ctx, func(m realtime.Message) { got <- m }))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	st, err := r.Get(context.Background(), "sess")
	require.NoError(t, err)
	settle(t, st.AddToCart("ABC", 1, nil))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-got:
			require.Equal(t, "sess", m.Channel)
			require.Equal(t, realtime.EventCartSnapshot, m.Event)
			var s cart.Snapshot
			require.NoError(t, json.Unmarshal(m.Data, &s))
			if s.ItemCount == 1 && !s.IsSyncing {
				return
			}
		case <-deadline:
			t.Fatalf("reconciled snapshot never reached the bus")
		}
	}
}

func TestCloseTearsDownStores(t *testing.T) {
	r, _ := newRegistry(t, RegistryOptions{})
	st, err := r.Get(context.Background(), "sess")
	require.NoError(t, err)

	r.Close()
	_, err = st.ClearCart().Wait(context.Background())
	assert.ErrorIs(t, err, cartstore.ErrClosed)
	_, err = r.Get(context.Background(), "other")
	assert.ErrorIs(t, err, cartstore.ErrClosed)
}
