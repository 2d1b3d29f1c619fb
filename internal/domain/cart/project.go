package cart

import "errors"

var (
	ErrInvalidQuantity   = errors.New("cart: quantity must be positive")
	ErrInvalidVariant    = errors.New("cart: variant id required")
	ErrInvalidAttributes = errors.New("cart: attribute keys must be non-empty")
)

// PriceHint is what the storefront knows about a variant before the backend
// confirms an add: its list price and display data. A zero UnitPrice leaves
// the projected totals unchanged for new lines.
type PriceHint struct {
	UnitPrice Money
	Display   DisplayMeta
}

// ProjectAdd returns the optimistic result of adding qty of variantID. Lines
// with the same variant and identical attributes are merged, mirroring the
// backend's own merge rule; anything else becomes a pending line keyed by
// pendingKey (PendingKeyPrefix+variantID when empty).
func ProjectAdd(s Snapshot, pendingKey, variantID string, qty int, attrs map[string]string, hint PriceHint) Snapshot {
	out := s.Clone()
	if qty <= 0 || variantID == "" {
		return out
	}
	for i := range out.Items {
		it := &out.Items[i]
		if it.VariantID != variantID || !SameAttributes(it.Attributes, attrs) {
			continue
		}
		unit := unitOf(*it)
		it.Quantity += qty
		it.LineTotal = unit * Money(it.Quantity)
		it.OriginalLineTotal = originalUnitOf(*it, unit) * Money(it.Quantity)
		out.Recompute()
		return out
	}

	if pendingKey == "" {
		pendingKey = PendingKeyPrefix + variantID
	}
	unit := ApplyDiscount(hint.UnitPrice, PlanDiscount(attrs))
	out.Items = append(out.Items, LineItem{
		Key:               pendingKey,
		VariantID:         variantID,
		Quantity:          qty,
		UnitPrice:         unit,
		LineTotal:         unit * Money(qty),
		OriginalLineTotal: hint.UnitPrice * Money(qty),
		Attributes:        cloneAttrs(attrs),
		Display:           hint.Display,
	})
	out.Recompute()
	return out
}

// ProjectSetQuantity sets the quantity of the line with key. qty <= 0 removes
// the line. Unknown keys leave the snapshot unchanged.
func ProjectSetQuantity(s Snapshot, key string, qty int) Snapshot {
	out := s.Clone()
	idx := out.Find(key)
	if idx < 0 {
		return out
	}
	if qty <= 0 {
		out.Items = append(out.Items[:idx], out.Items[idx+1:]...)
		out.Recompute()
		return out
	}
	it := &out.Items[idx]
	unit := unitOf(*it)
	orig := originalUnitOf(*it, unit)
	it.Quantity = qty
	it.LineTotal = unit * Money(qty)
	it.OriginalLineTotal = orig * Money(qty)
	out.Recompute()
	return out
}

func ProjectClear(s Snapshot) Snapshot {
	out := s.Clone()
	out.Items = []LineItem{}
	out.Recompute()
	return out
}

// unitOf derives the effective per-unit price from the backend's line total,
// which already includes any discounts the backend applied.
func unitOf(it LineItem) Money {
	if it.Quantity > 0 && it.LineTotal > 0 {
		return it.LineTotal / Money(it.Quantity)
	}
	return it.UnitPrice
}

func originalUnitOf(it LineItem, fallback Money) Money {
	if it.Quantity > 0 && it.OriginalLineTotal > 0 {
		return it.OriginalLineTotal / Money(it.Quantity)
	}
	return fallback
}
