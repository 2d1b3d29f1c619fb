// Package mock is an in-memory commerce backend. It owns line keys, merges
// lines by variant and properties, prices subscription plans and can be told
// to fail or block specific operations.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/storefront-backend/internal/commerce"
	"github.com/yungbote/storefront-backend/internal/domain/cart"
)

// Hook runs before an operation is applied. Returning an error fails the
// call; blocking on ctx simulates a slow backend.
type Hook func(ctx context.Context) error

type Backend struct {
	mu       sync.Mutex
	prices   map[string]cart.PriceHint
	currency string
	carts    map[string]*cart.Snapshot

	failNext map[string][]error
	hooks    map[string]Hook
	calls    map[string]int
}

var _ commerce.Client = (*Backend)(nil)

func New(prices map[string]cart.PriceHint, currency string) *Backend {
	p := make(map[string]cart.PriceHint, len(prices))
	for k, v := range prices {
		p[k] = v
	}
	if currency == "" {
		currency = "INR"
	}
	return &Backend{
		prices:   p,
		currency: currency,
		carts:    map[string]*cart.Snapshot{},
		failNext: map[string][]error{},
		hooks:    map[string]Hook{},
		calls:    map[string]int{},
	}
}

// FailNext queues err as the result of the next call to op.
func (b *Backend) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext[op] = append(b.failNext[op], err)
}

// FailStatus queues a ProtocolError with the given HTTP status for op.
func (b *Backend) FailStatus(op string, status int) {
	b.FailNext(op, &commerce.ProtocolError{Op: op, StatusCode: status, Body: http.StatusText(status)})
}

// SetHook installs h for op. A nil hook removes it.
func (b *Backend) SetHook(op string, h Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h == nil {
		delete(b.hooks, op)
		return
	}
	b.hooks[op] = h
}

func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Seed replaces the cart behind token. Used to simulate changes made from
// another device or tab.
func (b *Backend) Seed(token string, items []cart.LineItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := cart.Snapshot{Items: make([]cart.LineItem, len(items)), Currency: b.currency, Token: token}
	copy(s.Items, items)
	s.Recompute()
	b.carts[token] = &s
}

func (b *Backend) FetchSnapshot(ctx context.Context, token string) (commerce.Result, error) {
	if err := b.before(ctx, commerce.OpFetch); err != nil {
		return commerce.Result{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resultLocked(b.cartLocked(token)), nil
}

func (b *Backend) AddLine(ctx context.Context, token string, line commerce.AddLine) (commerce.Result, error) {
	if err := b.before(ctx, commerce.OpAdd); err != nil {
		return commerce.Result{}, err
	}
	if line.Quantity <= 0 {
		return commerce.Result{}, &commerce.ProtocolError{Op: commerce.OpAdd, StatusCode: http.StatusUnprocessableEntity, Body: "quantity must be positive"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	hint, ok := b.prices[line.VariantID]
	if !ok {
		return commerce.Result{}, &commerce.ProtocolError{Op: commerce.OpAdd, StatusCode: http.StatusUnprocessableEntity, Body: "variant not found"}
	}

	c := b.cartLocked(token)
	key := lineKey(line.VariantID, line.Attributes)
	unit := cart.ApplyDiscount(hint.UnitPrice, cart.PlanDiscount(line.Attributes))
	if idx := c.Find(key); idx >= 0 {
		it := &c.Items[idx]
		it.Quantity += line.Quantity
		it.LineTotal = it.UnitPrice * cart.Money(it.Quantity)
		it.OriginalLineTotal = hint.UnitPrice * cart.Money(it.Quantity)
	} else {
		c.Items = append(c.Items, cart.LineItem{
			Key:               key,
			VariantID:         line.VariantID,
			Quantity:          line.Quantity,
			UnitPrice:         unit,
			LineTotal:         unit * cart.Money(line.Quantity),
			OriginalLineTotal: hint.UnitPrice * cart.Money(line.Quantity),
			Attributes:        copyAttrs(line.Attributes),
			Display:           hint.Display,
		})
	}
	c.Recompute()
	return b.resultLocked(c), nil
}

func (b *Backend) SetLineQuantity(ctx context.Context, token, key string, qty int) (commerce.Result, error) {
	if err := b.before(ctx, commerce.OpChange); err != nil {
		return commerce.Result{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cartLocked(token)
	idx := c.Find(key)
	if idx < 0 {
		return commerce.Result{}, &commerce.ProtocolError{Op: commerce.OpChange, StatusCode: http.StatusBadRequest, Body: "no valid id or line parameter"}
	}
	if qty <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	} else {
		it := &c.Items[idx]
		base := it.OriginalLineTotal / cart.Money(it.Quantity)
		it.Quantity = qty
		it.LineTotal = it.UnitPrice * cart.Money(qty)
		it.OriginalLineTotal = base * cart.Money(qty)
	}
	c.Recompute()
	return b.resultLocked(c), nil
}

func (b *Backend) Clear(ctx context.Context, token string) (commerce.Result, error) {
	if err := b.before(ctx, commerce.OpClear); err != nil {
		return commerce.Result{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cartLocked(token)
	c.Items = []cart.LineItem{}
	c.Recompute()
	return b.resultLocked(c), nil
}

func (b *Backend) before(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	hook := b.hooks[op]
	var injected error
	if q := b.failNext[op]; len(q) > 0 {
		injected = q[0]
		b.failNext[op] = q[1:]
	}
	b.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return wrap(op, err)
		}
	}
	if injected != nil {
		return wrap(op, injected)
	}
	if err := ctx.Err(); err != nil {
		return &commerce.NetworkError{Op: op, Err: err}
	}
	return nil
}

// wrap leaves typed commerce errors alone and treats anything else as a
// transport failure.
func wrap(op string, err error) error {
	if commerce.IsNetwork(err) || commerce.IsProtocol(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &commerce.NetworkError{Op: op, Err: err}
	}
	return &commerce.NetworkError{Op: op, Err: fmt.Errorf("mock: %w", err)}
}

// cartLocked returns the cart for token, creating it under token (or a new
// token when empty).
func (b *Backend) cartLocked(token string) *cart.Snapshot {
	if token == "" {
		token = uuid.NewString()
	}
	if c, ok := b.carts[token]; ok {
		return c
	}
	c := &cart.Snapshot{Items: []cart.LineItem{}, Currency: b.currency, Token: token}
	b.carts[token] = c
	return c
}

func (b *Backend) resultLocked(c *cart.Snapshot) commerce.Result {
	out := c.Clone()
	return commerce.Result{Cart: out, Token: c.Token}
}

// lineKey is stable for a variant and property set, like the backend's own
// "<variant>:<hash>" keys.
func lineKey(variant string, attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(attrs[k])
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return variant + ":" + hex.EncodeToString(sum[:])[:16]
}

func copyAttrs(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
