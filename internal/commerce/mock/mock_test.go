package mock

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/storefront-backend/internal/commerce"
	"github.com/yungbote/storefront-backend/internal/domain/cart"
)

func newBackend() *Backend {
	return New(map[string]cart.PriceHint{
		"ABC": {UnitPrice: 34900},
		"SUB": {UnitPrice: 129900},
	}, "INR")
}

func TestAddMergesByAttributes(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	res, err := b.AddLine(ctx, "", commerce.AddLine{VariantID: "ABC", Quantity: 2})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	tok := res.Token
	if tok == "" {
		t.Fatalf("expected a new token")
	}
	if res.Cart.ItemCount != 2 || res.Cart.TotalPrice != 69800 {
		t.Fatalf("got %+v", res.Cart)
	}

	res, _ = b.AddLine(ctx, tok, commerce.AddLine{VariantID: "ABC", Quantity: 1})
	if len(res.Cart.Items) != 1 || res.Cart.Items[0].Quantity != 3 {
		t.Fatalf("expected merge, got %+v", res.Cart.Items)
	}

	sub := map[string]string{cart.AttrPurchaseType: cart.PurchaseSubscribe, cart.AttrSubscriptionPlan: cart.PlanMonthly}
	res, _ = b.AddLine(ctx, tok, commerce.AddLine{VariantID: "ABC", Quantity: 1, Attributes: sub})
	if len(res.Cart.Items) != 2 {
		t.Fatalf("different properties must not merge: %+v", res.Cart.Items)
	}
	if !res.Cart.Consistent() {
		t.Fatalf("inconsistent cart %+v", res.Cart)
	}
}

func TestPlanPricing(t *testing.T) {
	b := newBackend()
	sub := map[string]string{cart.AttrPurchaseType: cart.PurchaseSubscribe, cart.AttrSubscriptionPlan: cart.PlanQuarterly}
	res, err := b.AddLine(context.Background(), "t", commerce.AddLine{VariantID: "SUB", Quantity: 1, Attributes: sub})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if res.Cart.TotalPrice != 103920 || res.Cart.Items[0].OriginalLineTotal != 129900 {
		t.Fatalf("got %+v", res.Cart.Items[0])
	}
}

func TestChangeAndClear(t *testing.T) {
	b := newBackend()
	ctx := context.Background()
	res, _ := b.AddLine(ctx, "t", commerce.AddLine{VariantID: "ABC", Quantity: 2})
	key := res.Cart.Items[0].Key

	res, err := b.SetLineQuantity(ctx, "t", key, 5)
	if err != nil || res.Cart.ItemCount != 5 || res.Cart.TotalPrice != 5*34900 {
		t.Fatalf("got %+v err=%v", res.Cart, err)
	}
	res, _ = b.SetLineQuantity(ctx, "t", key, 0)
	if len(res.Cart.Items) != 0 {
		t.Fatalf("expected removal")
	}
	if _, err := b.SetLineQuantity(ctx, "t", "nope", 1); !commerce.IsProtocol(err) {
		t.Fatalf("err=%v", err)
	}

	b.AddLine(ctx, "t", commerce.AddLine{VariantID: "ABC", Quantity: 1})
	for i := 0; i < 2; i++ {
		res, err = b.Clear(ctx, "t")
		if err != nil || res.Cart.ItemCount != 0 {
			t.Fatalf("clear %d: %+v err=%v", i, res.Cart, err)
		}
	}
}

func TestUnknownVariant(t *testing.T) {
	_, err := newBackend().AddLine(context.Background(), "t", commerce.AddLine{VariantID: "X", Quantity: 1})
	var pe *commerce.ProtocolError
	if !errors.As(err, &pe) || pe.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("err=%v", err)
	}
}

func TestFailureInjection(t *testing.T) {
	b := newBackend()
	ctx := context.Background()
	b.FailStatus(commerce.OpAdd, http.StatusInternalServerError)
	if _, err := b.AddLine(ctx, "t", commerce.AddLine{VariantID: "ABC", Quantity: 1}); !commerce.IsProtocol(err) {
		t.Fatalf("err=%v", err)
	}
	if _, err := b.AddLine(ctx, "t", commerce.AddLine{VariantID: "ABC", Quantity: 1}); err != nil {
		t.Fatalf("second add should succeed: %v", err)
	}

	b.FailNext(commerce.OpFetch, errors.New("reset by peer"))
	if _, err := b.FetchSnapshot(ctx, "t"); !commerce.IsNetwork(err) {
		t.Fatalf("err=%v", err)
	}
	if b.Calls(commerce.OpAdd) != 2 || b.Calls(commerce.OpFetch) != 1 {
		t.Fatalf("calls add=%d fetch=%d", b.Calls(commerce.OpAdd), b.Calls(commerce.OpFetch))
	}
}

func TestHookBlocksUntilDeadline(t *testing.T) {
	b := newBackend()
	b.SetHook(commerce.OpChange, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.SetLineQuantity(ctx, "t", "k", 1)
	if !commerce.IsNetwork(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestSeedSimulatesOtherDevice(t *testing.T) {
	b := newBackend()
	b.Seed("t", []cart.LineItem{{Key: "k", VariantID: "ABC", Quantity: 4, UnitPrice: 34900, LineTotal: 4 * 34900}})
	res, _ := b.FetchSnapshot(context.Background(), "t")
	if res.Cart.ItemCount != 4 || res.Token != "t" {
		t.Fatalf("got %+v", res)
	}
}
