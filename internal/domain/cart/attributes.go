package cart

import "strings"

// Line item properties the storefront sets on subscription purchases. The
// backend receives them untouched; the store only reads them to estimate a
// provisional price.
const (
	AttrPurchaseType     = "purchase_type"
	AttrSubscriptionPlan = "subscription_plan"

	PurchaseOneTime   = "onetime"
	PurchaseSubscribe = "subscribe"

	PlanMonthly   = "1month"
	PlanQuarterly = "3month"
)

// PlanDiscount returns the subscription discount implied by attrs
// (1500 = 15%). Unknown plans and one-time purchases get zero.
func PlanDiscount(attrs map[string]string) int64 {
	if !strings.EqualFold(strings.TrimSpace(attrs[AttrPurchaseType]), PurchaseSubscribe) {
		return 0
	}
	switch strings.TrimSpace(attrs[AttrSubscriptionPlan]) {
	case PlanMonthly:
		return 1500
	case PlanQuarterly:
		return 2000
	default:
		return 0
	}
}

// ApplyDiscount rounds half up to the nearest minor unit.
func ApplyDiscount(price Money, bps int64) Money {
	if bps <= 0 {
		return price
	}
	if bps >= 10000 {
		return 0
	}
	v := int64(price) * (10000 - bps)
	return Money((v + 5000) / 10000)
}

// SameAttributes compares attribute sets, treating nil and empty as equal.
func SameAttributes(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// ValidateAttributes rejects blank keys. Values are opaque.
func ValidateAttributes(attrs map[string]string) error {
	for k := range attrs {
		if strings.TrimSpace(k) == "" {
			return ErrInvalidAttributes
		}
	}
	return nil
}
