package observability

import (
	"strings"
	"testing"
	"time"
)

func TestWritePrometheus(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTP("GET", "/api/cart", 200, 20*time.Millisecond)
	m.ObserveReconcile("add", "ok", 300*time.Millisecond)
	m.ObserveReconcile("add", "timeout", 9*time.Second)
	m.TrackGauge("storefront_cart_sessions", "Live cart stores.", func() float64 { return 3 })

	var b strings.Builder
	if err := m.WritePrometheus(&b); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := b.String()
	for _, want := range []string{
		`storefront_http_requests_total{method="GET",route="/api/cart",status="200"} 1`,
		`storefront_cart_reconciles_total{op="add",outcome="ok"} 1`,
		`storefront_cart_reconciles_total{op="add",outcome="timeout"} 1`,
		`storefront_cart_reconcile_duration_seconds_bucket{op="add",le="0.5"} 1`,
		`storefront_cart_reconcile_duration_seconds_bucket{op="add",le="+Inf"} 2`,
		`storefront_cart_reconcile_duration_seconds_count{op="add"} 2`,
		"storefront_http_inflight_requests 0",
		"storefront_cart_sessions 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.ObserveReconcile("add", "ok", time.Millisecond)
	m.InflightInc()
	m.TrackGauge("x", "y", func() float64 { return 1 })
	if err := m.WritePrometheus(&strings.Builder{}); err != nil {
		t.Fatalf("write: %v", err)
	}
}
