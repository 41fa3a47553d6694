// Package metrics is a small Prometheus-text-format registry. It covers the
// counters, gauges, and latency histograms the compliance services expose
// without pulling in the full client library.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are latency buckets in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}

// Counter only goes up.
type Counter struct{ v atomic.Int64 }

func (c *Counter) Inc()         { c.v.Add(1) }
func (c *Counter) Add(n int64)  { c.v.Add(n) }
func (c *Counter) Value() int64 { return c.v.Load() }

// Gauge goes up and down.
type Gauge struct{ v atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.v.Store(n) }
func (g *Gauge) Inc()         { g.v.Add(1) }
func (g *Gauge) Dec()         { g.v.Add(-1) }
func (g *Gauge) Value() int64 { return g.v.Load() }

// Histogram records a distribution over fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	bounds  []float64
	counts  []uint64
	sum     float64
	total   uint64
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.total++
	for i, b := range h.bounds {
		if v <= b {
			h.counts[i]++
			break
		}
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

// series is one labelled instance of a metric.
type series struct {
	labels string // rendered label block, may be empty
	c      *Counter
	g      *Gauge
	h      *Histogram
}

// family groups the series sharing one metric name.
type family struct {
	kind   string // counter, gauge, histogram
	help   string
	series map[string]*series // keyed by label block
	order  []string
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	order    []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

func (r *Registry) family(name, kind, help string) *family {
	f, ok := r.families[name]
	if !ok {
		f = &family{kind: kind, help: help, series: make(map[string]*series)}
		r.families[name] = f
		r.order = append(r.order, name)
	}
	return f
}

func (f *family) get(labels string) *series {
	s, ok := f.series[labels]
	if !ok {
		s = &series{labels: labels}
		f.series[labels] = s
		f.order = append(f.order, labels)
	}
	return s
}

// splitName separates `name{k="v"}` into base name and label block.
func splitName(name string) (string, string) {
	if i := strings.IndexByte(name, '{'); i != -1 {
		return name[:i], name[i:]
	}
	return name, ""
}

// WithLabels renders a metric name with a label block appended:
// WithLabels("x", "k", "v") is `x{k="v"}`.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	parts := make([]string, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		parts = append(parts, fmt.Sprintf(`%s=%q`, kvs[i], kvs[i+1]))
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

// Counter returns the counter for name, creating it on first use. The name
// may carry a label block from WithLabels.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	base, labels := splitName(name)
	s := r.family(base, "counter", help).get(labels)
	if s.c == nil {
		s.c = &Counter{}
	}
	return s.c
}

// Gauge returns the gauge for name, creating it on first use.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	base, labels := splitName(name)
	s := r.family(base, "gauge", help).get(labels)
	if s.g == nil {
		s.g = &Gauge{}
	}
	return s.g
}

// Histogram returns the histogram for name, creating it on first use.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	base, labels := splitName(name)
	s := r.family(base, "histogram", help).get(labels)
	if s.h == nil {
		bounds := append([]float64(nil), buckets...)
		sort.Float64s(bounds)
		s.h = &Histogram{bounds: bounds, counts: make([]uint64, len(bounds))}
	}
	return s.h
}

// Render produces the Prometheus text exposition of every registered metric.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, name := range r.order {
		f := r.families[name]
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, f.kind)

		labelBlocks := append([]string(nil), f.order...)
		sort.Strings(labelBlocks)
		for _, labels := range labelBlocks {
			s := f.series[labels]
			switch f.kind {
			case "counter":
				fmt.Fprintf(&b, "%s%s %d\n", name, labels, s.c.Value())
			case "gauge":
				fmt.Fprintf(&b, "%s%s %d\n", name, labels, s.g.Value())
			case "histogram":
				renderHistogram(&b, name, labels, s.h)
			}
		}
	}
	return b.String()
}

func renderHistogram(b *strings.Builder, name, labels string, h *Histogram) {
	h.mu.Lock()
	bounds := h.bounds
	counts := append([]uint64(nil), h.counts...)
	sum, total := h.sum, h.total
	h.mu.Unlock()

	inner := strings.TrimSuffix(strings.TrimPrefix(labels, "{"), "}")
	join := func(le string) string {
		if inner == "" {
			return fmt.Sprintf("{le=%q}", le)
		}
		return fmt.Sprintf("{%s,le=%q}", inner, le)
	}

	cumulative := uint64(0)
	for i, bound := range bounds {
		cumulative += counts[i]
		fmt.Fprintf(b, "%s_bucket%s %d\n", name, join(fmt.Sprintf("%g", bound)), cumulative)
	}
	fmt.Fprintf(b, "%s_bucket%s %d\n", name, join("+Inf"), total)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, labels, sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, labels, total)
}

// Handler serves the rendered registry.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}

// Serve blocks serving /metrics on the given port.
func (r *Registry) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// ServeAsync serves /metrics in a background goroutine.
func (r *Registry) ServeAsync(port int) {
	go func() {
		if err := r.Serve(port); err != nil {
			fmt.Printf("metrics server error on port %d: %v\n", port, err)
		}
	}()
}
