// Package metrics exposes request, frame and image-branch counters in the
// Prometheus text exposition format.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry the request pipeline records into.
var Collector = NewRegistry()

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// family groups every labelled series sharing one metric name.
type family struct {
	name   string
	help   string
	kind   kind
	series map[string]any // labels -> *Counter | *Gauge | *Histogram
}

// Registry aggregates counters, gauges and histograms by name and label set.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	started  time.Time
}

func NewRegistry() *Registry {
	return &Registry{families: make(map[string]*family), started: time.Now()}
}

// Uptime returns how long the registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.started)
}

// Counter is a monotonically increasing counter.
type Counter struct{ value atomic.Int64 }

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n int64) { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct{ value atomic.Int64 }

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Inc() { g.value.Add(1) }
func (g *Gauge) Dec() { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values. Bucket counts are
// cumulative.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	count  int64
	sum    float64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

type histogramSnapshot struct {
	bounds []float64
	counts []int64
	count  int64
	sum    float64
}

func (h *Histogram) snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		bounds: h.bounds,
		counts: append([]int64(nil), h.counts...),
		count:  h.count,
		sum:    h.sum,
	}
}

// Counter returns the counter for name and labels, creating it on first use.
// labels is the rendered label set, e.g. `type="message"`.
func (r *Registry) Counter(name, help, labels string) *Counter {
	return r.lookup(name, help, labels, kindCounter, func() any { return &Counter{} }).(*Counter)
}

// Gauge returns the gauge for name and labels, creating it on first use.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	return r.lookup(name, help, labels, kindGauge, func() any { return &Gauge{} }).(*Gauge)
}

// Histogram returns the histogram for name and labels. buckets only matter
// on first use.
func (r *Registry) Histogram(name, help, labels string, buckets []float64) *Histogram {
	return r.lookup(name, help, labels, kindHistogram, func() any {
		bounds := append([]float64(nil), buckets...)
		sort.Float64s(bounds)
		return &Histogram{bounds: bounds, counts: make([]int64, len(bounds))}
	}).(*Histogram)
}

// lookup panics when name is reused with a different kind; metric names are
// fixed at compile time so this is a programming error.
func (r *Registry) lookup(name, help, labels string, k kind, create func() any) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.families[name]
	if !ok {
		f = &family{name: name, help: help, kind: k, series: make(map[string]any)}
		r.families[name] = f
	}
	if f.kind != k {
		panic("metrics: " + name + " registered as " + string(f.kind) + ", requested as " + string(k))
	}
	s, ok := f.series[labels]
	if !ok {
		s = create()
		f.series[labels] = s
	}
	return s
}

// --- Metrics recorded by the request pipeline ---

var (
	RequestsTotal  = Collector.Counter("searchbot_requests_total", "Inbound message frames accepted", "")
	RewritesTotal  = Collector.Counter("searchbot_rewrites_total", "Requests that rewrote an earlier message", "")
	OpenConnection = Collector.Gauge("searchbot_ws_connections", "Open WebSocket connections", "")

	StreamSeconds = Collector.Histogram("searchbot_stream_seconds", "Time from producer start to terminal frame", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
)

// FramesTotal counts outbound frames of the given type.
func FramesTotal(frameType string) *Counter {
	return Collector.Counter("searchbot_frames_total", "Outbound frames by type", `type="`+frameType+`"`)
}

// RequestErrors counts error frames by key.
func RequestErrors(key string) *Counter {
	return Collector.Counter("searchbot_request_errors_total", "Error frames by key", `key="`+key+`"`)
}

// ImageBranch counts image branch outcomes (rendered, failed, skipped).
func ImageBranch(outcome string) *Counter {
	return Collector.Counter("searchbot_image_branch_total", "Image branch outcomes", `outcome="`+outcome+`"`)
}
