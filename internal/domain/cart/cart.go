// Package cart holds the storefront's view of a shopper cart.
//
// The remote commerce backend owns the cart. A Snapshot is whatever it last
// reported, optionally overlaid with a provisional projection of an in-flight
// mutation. Snapshots are replaced wholesale; they are never merged.
package cart

import (
	"strings"
	"time"
)

// Money is an amount in minor currency units (paise for INR). Every price the
// storefront touches is in this unit; conversion to display units happens in
// the browser.
type Money int64

// DisplayMeta is presentation data echoed by the backend. It is never
// authoritative.
type DisplayMeta struct {
	ProductTitle string `json:"product_title,omitempty"`
	VariantTitle string `json:"variant_title,omitempty"`
	Image        string `json:"image,omitempty"`
}

type LineItem struct {
	// Key is assigned by the backend and used for every mutation of this line.
	// Optimistically added lines carry a "pending:" key until reconciled.
	Key       string `json:"key"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`

	UnitPrice         Money `json:"unit_price"`
	LineTotal         Money `json:"line_total"`
	OriginalLineTotal Money `json:"original_line_total"`

	Attributes map[string]string `json:"attributes,omitempty"`
	Display    DisplayMeta       `json:"display"`
}

// Pending reports whether the line is an optimistic placeholder.
func (li LineItem) Pending() bool { return strings.HasPrefix(li.Key, PendingKeyPrefix) }

const PendingKeyPrefix = "pending:"

type NoticeKind string

const (
	NoticeMutationFailed NoticeKind = "mutation_failed"
	NoticeSyncFailed     NoticeKind = "sync_failed"
)

// Notice is a transient message for the shopper about a cart update that did
// not go through. Consumers show it and dismiss it; it is local state only.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Op      string     `json:"op"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

type Snapshot struct {
	Items      []LineItem `json:"items"`
	ItemCount  int        `json:"item_count"`
	TotalPrice Money      `json:"total_price"`
	Currency   string     `json:"currency,omitempty"`

	// Token is the remote cart token the backend reported with this
	// snapshot. It is a credential and never serialized to consumers.
	Token string `json:"-"`

	// IsOpen and IsSyncing are local UI state and never sent to the backend.
	IsOpen    bool    `json:"is_open"`
	IsSyncing bool    `json:"is_syncing"`
	Notice    *Notice `json:"notice,omitempty"`

	// Version increases on every change published by a cart store.
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Empty returns a snapshot with no items and zeroed totals.
func Empty() Snapshot {
	return Snapshot{Items: []LineItem{}}
}

// Recompute drops non-positive lines and derives ItemCount and TotalPrice from
// the remaining items.
func (s *Snapshot) Recompute() {
	kept := make([]LineItem, 0, len(s.Items))
	var count int
	var total Money
	for _, it := range s.Items {
		if it.Quantity <= 0 {
			continue
		}
		kept = append(kept, it)
		count += it.Quantity
		total += it.LineTotal
	}
	s.Items = kept
	s.ItemCount = count
	s.TotalPrice = total
}

// Consistent reports whether the aggregate fields match the items.
func (s Snapshot) Consistent() bool {
	var count int
	var total Money
	for _, it := range s.Items {
		if it.Quantity <= 0 {
			return false
		}
		count += it.Quantity
		total += it.LineTotal
	}
	return count == s.ItemCount && total == s.TotalPrice
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.Items = make([]LineItem, len(s.Items))
	for i, it := range s.Items {
		it.Attributes = cloneAttrs(it.Attributes)
		out.Items[i] = it
	}
	if s.Notice != nil {
		n := *s.Notice
		out.Notice = &n
	}
	return out
}

// Find returns the index of the line with the given key, or -1.
func (s Snapshot) Find(key string) int {
	for i, it := range s.Items {
		if it.Key == key {
			return i
		}
	}
	return -1
}

func cloneAttrs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
