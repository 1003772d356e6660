package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// PrometheusFormat exports all metrics in Prometheus text exposition format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder

	// Cell metrics
	writeCounterVec(&sb, m.CellsCompleted)
	writeCounter(&sb, m.CellErrors)
	writeHistogramVec(&sb, m.CellDuration)
	writeGauge(&sb, m.CellsInFlight)

	// Engine metrics
	writeCounterVec(&sb, m.AppliedOperations)
	writeCounterVec(&sb, m.Adjustments)
	writeCounterVec(&sb, m.DegenerateTopics)

	// Bus metrics
	writeCounterVec(&sb, m.EventsPublished)
	writeCounterVec(&sb, m.EventErrors)
	writeHistogramVec(&sb, m.EventLatency)

	return sb.String()
}

// WriteTo writes the exposition text to w.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, m.PrometheusFormat())
	return int64(n), err
}

// WriteFile writes the exposition text to path, for collection by a node exporter
// textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.IOError(path, err)
	}
	if err := os.WriteFile(path, []byte(m.PrometheusFormat()), 0644); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, kind)
}

// writeCounter writes a counter in Prometheus format.
func writeCounter(sb *strings.Builder, c *Counter) {
	writeHeader(sb, c.Name(), c.Help(), "counter")
	writeSample(sb, c.Name(), c.Labels(), strconv.FormatInt(c.Value(), 10))
}

// writeGauge writes a gauge in Prometheus format.
func writeGauge(sb *strings.Builder, g *Gauge) {
	writeHeader(sb, g.Name(), g.Help(), "gauge")
	writeSample(sb, g.Name(), g.Labels(), formatFloat(g.Value()))
}

// writeCounterVec writes a counter vector; an empty vector writes nothing.
func writeCounterVec(sb *strings.Builder, cv *CounterVec) {
	counters := cv.GetAll()
	if len(counters) == 0 {
		return
	}
	writeHeader(sb, cv.Name(), cv.Help(), "counter")
	for _, c := range counters {
		writeSample(sb, c.Name(), c.Labels(), strconv.FormatInt(c.Value(), 10))
	}
}

// writeHistogramVec writes a histogram vector; an empty vector writes nothing.
func writeHistogramVec(sb *strings.Builder, hv *HistogramVec) {
	histograms := hv.GetAll()
	if len(histograms) == 0 {
		return
	}
	writeHeader(sb, hv.Name(), hv.Help(), "histogram")
	for _, h := range histograms {
		writeHistogramSamples(sb, h)
	}
}

func writeHistogramSamples(sb *strings.Builder, h *Histogram) {
	labels := h.Labels()
	counts := h.BucketCounts()

	for i, bucket := range h.Buckets() {
		writeSample(sb, h.Name()+"_bucket", withLabel(labels, "le", formatFloat(bucket)), strconv.FormatInt(counts[i], 10))
	}
	writeSample(sb, h.Name()+"_bucket", withLabel(labels, "le", "+Inf"), strconv.FormatInt(counts[len(counts)-1], 10))
	writeSample(sb, h.Name()+"_sum", labels, formatFloat(h.Sum()))
	writeSample(sb, h.Name()+"_count", labels, strconv.FormatInt(h.Count(), 10))
}

func writeSample(sb *strings.Builder, name string, labels map[string]string, value string) {
	sb.WriteString(name)
	writeLabels(sb, labels)
	sb.WriteString(" ")
	sb.WriteString(value)
	sb.WriteString("\n")
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	result := copyLabels(labels)
	result[key] = value
	return result
}

// writeLabels writes labels in Prometheus format {key="value",key2="value2"}.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sortLabelKeys(keys)

	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=\"")
		sb.WriteString(escapeString(labels[k]))
		sb.WriteString("\"")
	}
	sb.WriteString("}")
}

// sortLabelKeys sorts alphabetically with "le" last.
func sortLabelKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a == "le" || b == "le" {
			return b == "le" && a != "le"
		}
		return a < b
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// escapeString escapes special characters in label values.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
