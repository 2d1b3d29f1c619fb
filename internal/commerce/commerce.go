// Package commerce defines the boundary to the remote commerce backend that
// owns shopper carts.
package commerce

import (
	"context"

	"github.com/yungbote/storefront-backend/internal/domain/cart"
)

// Result is a cart as reported by the backend together with the cart token
// that identifies it. Token may differ from the one sent when the backend
// rotates or creates a cart.
type Result struct {
	Cart  cart.Snapshot
	Token string
	// Partial is set when the call succeeded but the response carried no
	// cart. Only Token is meaningful then and the caller must refetch.
	Partial bool
}

// AddLine is one line of an add request.
type AddLine struct {
	VariantID  string
	Quantity   int
	Attributes map[string]string
}

// Client is the remote cart contract. Every call is a full round trip and
// none of them mutate shared state. A success carries the authoritative cart
// unless it is marked Partial.
type Client interface {
	FetchSnapshot(ctx context.Context, token string) (Result, error)
	AddLine(ctx context.Context, token string, line AddLine) (Result, error)
	SetLineQuantity(ctx context.Context, token, key string, qty int) (Result, error)
	Clear(ctx context.Context, token string) (Result, error)
}

// Operation names used in errors and logs.
const (
	OpFetch  = "fetch"
	OpAdd    = "add"
	OpChange = "change"
	OpClear  = "clear"
)
