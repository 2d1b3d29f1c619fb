package observability

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics is a small Prometheus text-format registry for the storefront.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	httpRequests *series
	httpLatency  *histogramSeries
	httpInflight *series

	reconciles       *series
	reconcileLatency *histogramSeries

	mu     sync.RWMutex
	gauges map[string]gaugeFunc
}

type gaugeFunc struct {
	help string
	fn   func() float64
}

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func NewMetrics() *Metrics {
	return &Metrics{
		httpRequests: newSeries("storefront_http_requests_total", "HTTP requests by route and status.", "counter", "method", "route", "status"),
		httpLatency: newHistogramSeries("storefront_http_request_duration_seconds", "HTTP request latency.",
			[]float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 10}, "method", "route"),
		httpInflight: newSeries("storefront_http_inflight_requests", "HTTP requests being served.", "gauge"),
		reconciles:   newSeries("storefront_cart_reconciles_total", "Cart reconciles by operation and outcome.", "counter", "op", "outcome"),
		reconcileLatency: newHistogramSeries("storefront_cart_reconcile_duration_seconds", "Mutation plus refetch latency.",
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16}, "op"),
		gauges: map[string]gaugeFunc{},
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.add(1, method, route, fmt.Sprint(status))
	m.httpLatency.observe(d.Seconds(), method, route)
}

func (m *Metrics) InflightInc() {
	if m != nil {
		m.httpInflight.add(1)
	}
}

func (m *Metrics) InflightDec() {
	if m != nil {
		m.httpInflight.add(-1)
	}
}

// ObserveReconcile records one cart reconcile.
func (m *Metrics) ObserveReconcile(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.reconciles.add(1, op, outcome)
	m.reconcileLatency.observe(d.Seconds(), op)
}

// TrackGauge reports fn's value at every scrape under name.
func (m *Metrics) TrackGauge(name, help string, fn func() float64) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	m.gauges[name] = gaugeFunc{help: help, fn: fn}
	m.mu.Unlock()
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, s := range []interface{ writeTo(io.Writer) error }{
		m.httpRequests, m.httpLatency, m.httpInflight, m.reconciles, m.reconcileLatency,
	} {
		if err := s.writeTo(w); err != nil {
			return err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.gauges))
	for name := range m.gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g := m.gauges[name]
		if err := writeHeader(w, name, g.help, "gauge"); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s %g\n", name, g.fn()); err != nil {
			return err
		}
	}
	return nil
}

// series is a counter or gauge keyed by its rendered label set.
type series struct {
	name   string
	help   string
	kind   string
	labels []string

	mu     sync.Mutex
	values map[string]float64
}

func newSeries(name, help, kind string, labels ...string) *series {
	return &series{name: name, help: help, kind: kind, labels: labels, values: map[string]float64{}}
}

func (s *series) add(v float64, values ...string) {
	key := labelString(s.labels, values)
	s.mu.Lock()
	s.values[key] += v
	s.mu.Unlock()
}

func (s *series) writeTo(w io.Writer) error {
	if err := writeHeader(w, s.name, s.help, s.kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.labels) == 0 && len(s.values) == 0 {
		_, err := fmt.Fprintf(w, "%s 0\n", s.name)
		return err
	}
	for _, k := range sortedKeys(s.values) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", s.name, k, s.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type histogramSeries struct {
	name    string
	help    string
	labels  []string
	buckets []float64

	mu     sync.Mutex
	values map[string]*histogram
}

type histogram struct {
	counts []uint64 // cumulative, one per bucket
	sum    float64
	total  uint64
}

func newHistogramSeries(name, help string, buckets []float64, labels ...string) *histogramSeries {
	return &histogramSeries{name: name, help: help, labels: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *histogramSeries) observe(v float64, values ...string) {
	key := labelString(h.labels, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[key]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets))}
		h.values[key] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range h.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
}

func (h *histogramSeries) writeTo(w io.Writer) error {
	if err := writeHeader(w, h.name, h.help, "histogram"); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		hist := h.values[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), hist.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), hist.total); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %g\n%s_count%s %d\n", h.name, k, hist.sum, h.name, k, hist.total); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(w io.Writer, name, help, kind string) error {
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	return err
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func labelString(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		parts[i] = name + `="` + escapeLabel(val) + `"`
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escapeLabel(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(v)
}

func withLe(labels, le string) string {
	if labels == "" {
		return `{le="` + le + `"}`
	}
	return strings.TrimSuffix(labels, "}") + `,le="` + le + `"}`
}
