// Package metrics provides Prometheus-compatible metrics for grid runs.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter represents a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	value  atomic.Int64
	labels map[string]string
}

// NewCounter creates a new counter.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{
		name:   name,
		help:   help,
		labels: copyLabels(labels),
	}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add adds delta to the counter. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Help returns the metric help text.
func (c *Counter) Help() string { return c.help }

// Labels returns a copy of the metric labels.
func (c *Counter) Labels() map[string]string { return copyLabels(c.labels) }

// Gauge represents a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	bits   atomic.Uint64 // math.Float64bits of the value
	labels map[string]string
}

// NewGauge creates a new gauge.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{
		name:   name,
		help:   help,
		labels: copyLabels(labels),
	}
}

// Set sets the gauge to value.
func (g *Gauge) Set(value float64) {
	g.bits.Store(math.Float64bits(value))
}

// Add adds delta to the gauge.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Help returns the metric help text.
func (g *Gauge) Help() string { return g.help }

// Labels returns a copy of the metric labels.
func (g *Gauge) Labels() map[string]string { return copyLabels(g.labels) }

// DefaultBuckets are latency buckets in milliseconds.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	labels  map[string]string

	mu     sync.Mutex
	counts []int64 // cumulative, last entry is +Inf
	sum    float64
	count  int64
}

// NewHistogram creates a histogram. Empty buckets use DefaultBuckets.
func NewHistogram(name, help string, buckets []float64, labels map[string]string) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	return &Histogram{
		name:    name,
		help:    help,
		buckets: sorted,
		labels:  copyLabels(labels),
		counts:  make([]int64, len(sorted)+1),
	}
}

// Observe adds a single observation.
func (h *Histogram) Observe(value float64) {
	idx := sort.SearchFloat64s(h.buckets, value)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += value
	h.count++
	for i := idx; i < len(h.counts); i++ {
		h.counts[i]++
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Buckets returns the bucket upper bounds.
func (h *Histogram) Buckets() []float64 {
	result := make([]float64, len(h.buckets))
	copy(result, h.buckets)
	return result
}

// BucketCounts returns the cumulative count per bucket, +Inf last.
func (h *Histogram) BucketCounts() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]int64, len(h.counts))
	copy(result, h.counts)
	return result
}

// Name returns the metric name.
func (h *Histogram) Name() string { return h.name }

// Help returns the metric help text.
func (h *Histogram) Help() string { return h.help }

// Labels returns a copy of the metric labels.
func (h *Histogram) Labels() map[string]string { return copyLabels(h.labels) }

// vec holds one child metric per label value combination.
type vec[M any] struct {
	name       string
	help       string
	labelNames []string
	create     func(labels map[string]string) M

	mu       sync.RWMutex
	children map[string]M
}

func (v *vec[M]) with(labelValues ...string) M {
	if len(labelValues) != len(v.labelNames) {
		panic(fmt.Sprintf("metric %s: expected %d label values, got %d", v.name, len(v.labelNames), len(labelValues)))
	}
	labels := make(map[string]string, len(v.labelNames))
	for i, name := range v.labelNames {
		labels[name] = labelValues[i]
	}
	key := labelsToKey(labels)

	v.mu.RLock()
	m, ok := v.children[key]
	v.mu.RUnlock()
	if ok {
		return m
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if m, ok := v.children[key]; ok {
		return m
	}
	m = v.create(labels)
	v.children[key] = m
	return m
}

// all returns the children ordered by label key.
func (v *vec[M]) all() []M {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.children))
	for k := range v.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]M, 0, len(keys))
	for _, k := range keys {
		result = append(result, v.children[k])
	}
	return result
}

// CounterVec represents a counter with labels.
type CounterVec struct {
	vec[*Counter]
}

// NewCounterVec creates a new counter vector.
func NewCounterVec(name, help string, labelNames []string) *CounterVec {
	return &CounterVec{vec[*Counter]{
		name:       name,
		help:       help,
		labelNames: labelNames,
		children:   make(map[string]*Counter),
		create: func(labels map[string]string) *Counter {
			return NewCounter(name, help, labels)
		},
	}}
}

// WithLabels returns the counter for the given label values, creating it on first use.
func (cv *CounterVec) WithLabels(labelValues ...string) *Counter {
	return cv.with(labelValues...)
}

// GetAll returns all counters in the vector, ordered by labels.
func (cv *CounterVec) GetAll() []*Counter { return cv.all() }

// Name returns the metric name.
func (cv *CounterVec) Name() string { return cv.name }

// Help returns the metric help text.
func (cv *CounterVec) Help() string { return cv.help }

// HistogramVec represents a histogram with labels.
type HistogramVec struct {
	vec[*Histogram]
}

// NewHistogramVec creates a new histogram vector.
func NewHistogramVec(name, help string, labelNames []string, buckets []float64) *HistogramVec {
	return &HistogramVec{vec[*Histogram]{
		name:       name,
		help:       help,
		labelNames: labelNames,
		children:   make(map[string]*Histogram),
		create: func(labels map[string]string) *Histogram {
			return NewHistogram(name, help, buckets, labels)
		},
	}}
}

// WithLabels returns the histogram for the given label values, creating it on first use.
func (hv *HistogramVec) WithLabels(labelValues ...string) *Histogram {
	return hv.with(labelValues...)
}

// GetAll returns all histograms in the vector, ordered by labels.
func (hv *HistogramVec) GetAll() []*Histogram { return hv.all() }

// Name returns the metric name.
func (hv *HistogramVec) Name() string { return hv.name }

// Help returns the metric help text.
func (hv *HistogramVec) Help() string { return hv.help }

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels))
	for k, v := range labels {
		result[k] = v
	}
	return result
}

// labelsToKey creates a stable key from a label map.
func labelsToKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(labels[k])
	}
	return sb.String()
}
